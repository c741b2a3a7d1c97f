package cli

import (
	"github.com/spf13/cobra"
)

func newBackupCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backup",
		Aliases: []string{"backups"},
		Short:   "Database backups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create [action]",
		Short: "Write a backup now",
		Long: `Write a backup of the database now. The file name records the action it
was taken before ("manual" when omitted). Daily backups are written by
'portfolio watch'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if _, err := app.openStore(); err != nil {
				return err
			}
			action := "manual"
			if len(args) == 1 {
				action = args[0]
			}
			info, err := app.Backups.Create(cmd.Context(), action)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(info)
			}
			output.Success("✓ Backup written: %s (%s)", info.Path, FormatSize(info.Size))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if _, err := app.openStore(); err != nil {
				return err
			}
			backups, err := app.Backups.List()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(backups)
			}
			if len(backups) == 0 {
				output.Dim("No backups in %s.", app.Backups.Dir())
				return nil
			}
			table := NewTable(output, "CREATED", "KIND", "SIZE", "FILE")
			for _, b := range backups {
				kind := "daily"
				switch {
				case b.Action != "":
					kind = "before " + b.Action
				case b.Monthly():
					kind = "monthly"
				}
				table.AddRow(b.CreatedAt.Format("2006-01-02 15:04"), kind, FormatSize(b.Size), b.Name)
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if _, err := app.openStore(); err != nil {
				return err
			}
			deleted, err := app.Backups.Cleanup()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"deleted": deleted})
			}
			output.Success("✓ Removed %d backup(s) older than %d days", deleted, app.Config.Backup.RetentionDays)
			return nil
		},
	})

	return cmd
}
