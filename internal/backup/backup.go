// Package backup manages copies of the portfolio database: one daily backup,
// backups taken before destructive actions, listing and retention cleanup.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
)

const (
	filePrefix   = "portfolio_backup_"
	dailyLayout  = "2006-01-02"
	actionLayout = "2006-01-02_15-04-05"
)

var (
	dailyPattern  = regexp.MustCompile(`^portfolio_backup_(\d{4}-\d{2}-\d{2})\.db$`)
	actionPattern = regexp.MustCompile(`^portfolio_backup_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})_before_([a-z0-9_-]+)\.db$`)
	unsafeChars   = regexp.MustCompile(`[^a-z0-9_-]`)
)

// Source writes a consistent copy of the database to a new file.
type Source interface {
	Backup(ctx context.Context, destPath string) error
}

// Info describes one backup file.
type Info struct {
	Path      string
	Name      string
	Size      int64
	CreatedAt time.Time
	Action    string // empty for daily backups
}

// Monthly reports whether the backup is the daily backup of the first day of
// a month. Monthly backups survive retention cleanup.
func (i Info) Monthly() bool {
	return i.Action == "" && i.CreatedAt.Day() == 1
}

// Manager creates and rotates backups in a single directory.
type Manager struct {
	source        Source
	dir           string
	retentionDays int
	now           func() time.Time
	log           zerolog.Logger
}

// NewManager creates a new backup manager.
func NewManager(source Source, dir string, retentionDays int, log zerolog.Logger) *Manager {
	if retentionDays < 1 {
		retentionDays = 30
	}
	return &Manager{
		source:        source,
		dir:           dir,
		retentionDays: retentionDays,
		now:           time.Now,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// SetClock replaces the clock used for file names and retention.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create writes a backup. With an empty action it is the daily backup for
// today; otherwise the file name records the time and the action it precedes.
func (m *Manager) Create(ctx context.Context, action string) (Info, error) {
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return Info{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := m.now()
	name := DailyName(now)
	if action != "" {
		name = ActionName(now, action)
	}
	path := filepath.Join(m.dir, name)

	start := time.Now()
	err := m.source.Backup(ctx, path)
	if err == nil {
		if verr := Verify(ctx, path); verr != nil {
			os.Remove(path)
			err = fmt.Errorf("backup verification failed: %v: %w", verr, apperrors.ErrBackup)
		}
	}
	logging.LogBackup(m.log, path, time.Since(start), err)
	if err != nil {
		return Info{}, err
	}

	return stat(path, name)
}

// DailyIfNeeded creates today's daily backup unless it already exists. The
// boolean reports whether a backup was written.
func (m *Manager) DailyIfNeeded(ctx context.Context) (Info, bool, error) {
	name := DailyName(m.now())
	path := filepath.Join(m.dir, name)
	if _, err := os.Stat(path); err == nil {
		info, err := stat(path, name)
		return info, false, err
	}

	info, err := m.Create(ctx, "")
	if err != nil {
		return Info{}, false, err
	}
	return info, true, nil
}

// List returns all backups, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		created, action, ok := ParseName(entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.dir, entry.Name()),
			Name:      entry.Name(),
			Size:      fi.Size(),
			CreatedAt: created,
			Action:    action,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Cleanup deletes backups older than the retention period, keeping monthly
// backups. It returns the number of files removed.
func (m *Manager) Cleanup() (int, error) {
	backups, err := m.List()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().AddDate(0, 0, -m.retentionDays)
	deleted := 0
	for _, b := range backups {
		if b.Monthly() || !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			m.log.Warn().Str("path", b.Path).Err(err).Msg("Failed to delete old backup")
			continue
		}
		m.log.Debug().Str("path", b.Path).Msg("Deleted old backup")
		deleted++
	}

	if deleted > 0 {
		m.log.Info().Int("deleted", deleted).Int("retention_days", m.retentionDays).Msg("Old backups removed")
	}
	return deleted, nil
}

// DailyName returns the daily backup file name for t.
func DailyName(t time.Time) string {
	return filePrefix + t.Format(dailyLayout) + ".db"
}

// ActionName returns the file name of a backup taken before action at t.
func ActionName(t time.Time, action string) string {
	return filePrefix + t.Format(actionLayout) + "_before_" + SanitizeAction(action) + ".db"
}

// SanitizeAction lower-cases action and keeps only [a-z0-9_-].
func SanitizeAction(action string) string {
	safe := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(action)), " ", "_")
	safe = unsafeChars.ReplaceAllString(safe, "")
	if safe == "" {
		return "action"
	}
	return safe
}

// ParseName extracts the creation time and action from a backup file name.
func ParseName(name string) (time.Time, string, bool) {
	if m := dailyPattern.FindStringSubmatch(name); m != nil {
		t, err := time.ParseInLocation(dailyLayout, m[1], time.Local)
		return t, "", err == nil
	}
	if m := actionPattern.FindStringSubmatch(name); m != nil {
		t, err := time.ParseInLocation(actionLayout, m[1], time.Local)
		return t, m[2], err == nil
	}
	return time.Time{}, "", false
}

// Verify runs an integrity check against the backup at path.
func Verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func stat(path, name string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat backup: %w", err)
	}
	created, action, _ := ParseName(name)
	return Info{Path: path, Name: name, Size: fi.Size(), CreatedAt: created, Action: action}, nil
}
