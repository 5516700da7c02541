// Command octabot is the single entry point: it loads configuration, runs
// database migrations, boots the engine's lifecycle, and serves the HTTP
// API alongside the scheduler until an OS signal asks it to stop.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/OctaHive/octabot/internal/app"
	"github.com/OctaHive/octabot/internal/config"
	"github.com/OctaHive/octabot/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "octabot:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()
	a, err := app.Boot(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	return a.Run(ctx)
}
