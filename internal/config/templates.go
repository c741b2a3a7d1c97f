package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Portfolio Tracker Configuration

[database]
# SQLite database file (defaults to portfolio.db next to this file)
# path = "~/.config/portfolio-tracker/portfolio.db"

[portfolio]
# Currency used when a command omits --currency
default_currency = "EUR"

[alerts]
# Evaluate price alerts while "portfolio watch" runs
enabled = true
# Cron spec (seconds optional) or descriptor such as "@every 5m"
schedule = "@every 1m"

[backup]
enabled = true
# dir = "~/.config/portfolio-tracker/backups"
# Backups older than this are removed by "backup cleanup" and the daily job
retention_days = 30
schedule = "@daily"
# Take a backup before deleting an asset and everything it owns
before_delete = true

[notifications]
enabled = true

[notifications.desktop]
# notify-send on Linux, osascript on macOS
enabled = true
# Also read alerts aloud with "say" (macOS)
voice = false

[notifications.webhook]
enabled = false
url = ""
timeout = "10s"
max_retries = 3

[logging]
# debug, info, warn, error
level = "info"
file = true
max_size_mb = 10
max_backups = 5
max_age_days = 30

[ui]
color_enabled = true
date_format = "2006-01-02"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
