package store

import (
	"context"
	"fmt"
	"os"

	apperrors "portfolio-tracker/internal/errors"
)

// CheckIntegrity runs PRAGMA integrity_check and returns the reported
// problems, or nil when the database is healthy.
func (s *SQLiteStore) CheckIntegrity(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("failed to run integrity check: %w", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("failed to scan integrity result: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	return problems, rows.Err()
}

// ForeignKeyViolations returns the number of rows referencing a missing parent.
func (s *SQLiteStore) ForeignKeyViolations(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return 0, fmt.Errorf("failed to run foreign key check: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

// Backup writes a consistent copy of the database to destPath using
// VACUUM INTO. destPath must not exist.
func (s *SQLiteStore) Backup(ctx context.Context, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("%s already exists: %w", destPath, apperrors.ErrBackup)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("vacuum into %s: %w: %v", destPath, apperrors.ErrBackup, err)
	}
	s.logger.Info().Str("path", destPath).Msg("Database backup written")
	return nil
}
