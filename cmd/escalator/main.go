// Command escalator runs the incident escalation and notification service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bissquit/incident-escalator/internal/app"
	"github.com/bissquit/incident-escalator/internal/config"
	"github.com/bissquit/incident-escalator/internal/pkg/postgres"
	"github.com/bissquit/incident-escalator/internal/version"
	"github.com/joho/godotenv"
)

type options struct {
	configPath     string
	migrationsDir  string
	migrateOnly    bool
	skipMigrations bool
}

// parseOptions loads .env first so it can supply flag defaults.
func parseOptions(args []string) (*options, error) {
	_ = godotenv.Load()

	var opts options
	fs := flag.NewFlagSet("escalator", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG_FILE"), "path to YAML config file")
	fs.StringVar(&opts.migrationsDir, "migrations", "migrations", "directory with SQL migrations")
	fs.BoolVar(&opts.migrateOnly, "migrate", false, "apply migrations and exit")
	fs.BoolVar(&opts.skipMigrations, "skip-migrations", false, "start without applying migrations")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.Info("escalator starting",
		"version", version.Version,
		"commit", version.GitCommit,
	)

	if opts.migrateOnly || !opts.skipMigrations {
		if err := postgres.Migrate(opts.migrationsDir, cfg.Database.URL); err != nil {
			slog.Error("migrate database", "error", err)
			os.Exit(1)
		}
		if opts.migrateOnly {
			return
		}
	}

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("initialize application", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		slog.Info("received signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slog.Error("server stopped", "error", err)
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		slog.Error("shutdown", "error", err)
		exitCode = 1
	}

	slog.Info("shutdown complete")
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}
