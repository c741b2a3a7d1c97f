package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
)

func newManager(t *testing.T, now time.Time) (*store.SQLiteStore, *Manager) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.CreateAsset(context.Background(), models.NewAsset{Symbol: "VWCE", Currency: "EUR"})
	require.NoError(t, err)

	m := NewManager(s, filepath.Join(dir, "backups"), 30, zerolog.Nop())
	m.SetClock(func() time.Time { return now })
	return s, m
}

func TestNames(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)

	assert.Equal(t, "portfolio_backup_2024-03-05.db", DailyName(at))
	assert.Equal(t, "portfolio_backup_2024-03-05_14-07-09_before_delete_asset_vwce.db", ActionName(at, "Delete asset VWCE!"))
	assert.Equal(t, "action", SanitizeAction("  ***  "))

	created, action, ok := ParseName("portfolio_backup_2024-03-05_14-07-09_before_delete_asset.db")
	require.True(t, ok)
	assert.Equal(t, at, created)
	assert.Equal(t, "delete_asset", action)

	_, _, ok = ParseName("portfolio_backup_latest.db")
	assert.False(t, ok)
}

func TestDailyIfNeededOncePerDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local)
	_, m := newManager(t, now)

	info, created, err := m.DailyIfNeeded(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "portfolio_backup_2024-06-10.db", info.Name)
	assert.Positive(t, info.Size)

	_, created, err = m.DailyIfNeeded(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	// An explicit daily backup for the same day is refused.
	_, err = m.Create(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrBackup)
}

func TestBackupIsRestorable(t *testing.T) {
	ctx := context.Background()
	_, m := newManager(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local))

	info, err := m.Create(ctx, "delete asset")
	require.NoError(t, err)
	assert.Equal(t, "delete_asset", info.Action)
	require.NoError(t, Verify(ctx, info.Path))

	restored, err := store.NewSQLiteStore(info.Path)
	require.NoError(t, err)
	defer restored.Close()
	assets, err := restored.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "VWCE", assets[0].Symbol)
}

func TestListAndCleanup(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.Local)
	_, m := newManager(t, now)
	require.NoError(t, os.MkdirAll(m.Dir(), 0700))

	names := []string{
		"portfolio_backup_2024-06-09.db",                              // recent
		"portfolio_backup_2024-04-02.db",                              // expired
		"portfolio_backup_2024-04-01.db",                              // expired, monthly
		"portfolio_backup_2024-04-03_10-00-00_before_delete_asset.db", // expired action
		"portfolio_backup_2024-06-01_10-00-00_before_import.db",       // recent action
		"notes.txt",
	}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), n), []byte("x"), 0600))
	}

	backups, err := m.List()
	require.NoError(t, err)
	require.Len(t, backups, 5)
	assert.Equal(t, "portfolio_backup_2024-06-09.db", backups[0].Name)

	deleted, err := m.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	backups, err = m.List()
	require.NoError(t, err)
	var left []string
	for _, b := range backups {
		left = append(left, b.Name)
	}
	assert.ElementsMatch(t, []string{
		"portfolio_backup_2024-06-09.db",
		"portfolio_backup_2024-06-01_10-00-00_before_import.db",
		"portfolio_backup_2024-04-01.db",
	}, left)
}

func TestListMissingDir(t *testing.T) {
	m := NewManager(nil, filepath.Join(t.TempDir(), "none"), 30, zerolog.Nop())
	backups, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, backups)
}
