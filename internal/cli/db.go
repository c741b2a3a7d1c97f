package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/store"
)

func newDBCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run integrity and foreign key checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			s, err := app.openStore()
			if err != nil {
				return err
			}

			problems, err := s.CheckIntegrity(ctx)
			if err != nil {
				return err
			}
			violations, err := s.ForeignKeyViolations(ctx)
			if err != nil {
				return err
			}
			var version int64
			if sq, ok := s.(*store.SQLiteStore); ok {
				if version, err = sq.SchemaVersion(ctx); err != nil {
					return err
				}
			}

			healthy := len(problems) == 0 && violations == 0
			if output.IsJSON() {
				if err := output.JSON(map[string]interface{}{
					"path":                   app.Config.Database.Path,
					"schema_version":         version,
					"integrity_problems":     problems,
					"foreign_key_violations": violations,
					"ok":                     healthy,
				}); err != nil {
					return err
				}
			} else {
				output.Printf("Database:       %s\n", app.Config.Database.Path)
				output.Printf("Schema version: %d\n", version)
				for _, p := range problems {
					output.Error("  %s", p)
				}
				if violations > 0 {
					output.Error("  %d row(s) reference a missing parent", violations)
				}
				if healthy {
					output.Success("✓ Database is healthy")
				}
			}

			if !healthy {
				return fmt.Errorf("%d integrity problem(s), %d foreign key violation(s): %w",
					len(problems), violations, apperrors.ErrIntegrity)
			}
			return nil
		},
	})

	return cmd
}
