package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"portfolio-tracker/internal/cli"
	"portfolio-tracker/internal/logging"
)

func main() {
	// Load .env file if it exists; PORTFOLIO_* variables override config.toml.
	_ = godotenv.Load()

	logger := logging.NewLoggerWithConfig(logging.LogConfig{Level: "warn", Console: true})

	app := cli.NewApp(logger)
	root := cli.NewRootCmd(app)

	err := root.ExecuteContext(context.Background())
	if cerr := app.Close(); cerr != nil {
		logger.Warn().Err(cerr).Msg("Failed to close database")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
