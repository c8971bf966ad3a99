package main

import (
	"fmt"
	"log/slog"
	"loancal/internal/auth"
	"loancal/internal/config"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "loancal",
		Usage: "Mirror library loans into a calendar, one all-day event per due date.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"LOANCAL_CONFIG"}, Usage: "Path to an optional YAML config file."},
		},
		Commands: []*cli.Command{
			authCommand(),
			loansCommand(),
			syncCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Check the service account by exchanging it for an access token.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			if err := cfg.ValidateGoogle(); err != nil {
				return err
			}
			cred, err := loadCredential(cfg)
			if err != nil {
				return err
			}

			logger.Info("Requesting access token.", "email", cred.Email)
			if _, err := auth.GetAccessToken(c.Context, cred); err != nil {
				return fmt.Errorf("failed to get access token: %w", err)
			}

			logger.Info("Service account is authorized to write calendar events.", "email", cred.Email)
			return nil
		},
	}
}

func loansCommand() *cli.Command {
	return &cli.Command{
		Name:  "loans",
		Usage: "Print the current loans without touching the calendar.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			loans, err := fetchLoans(c.Context, logger, cfg)
			if err != nil {
				return err
			}
			printLoans(c.App.Writer, loans)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run the calendar synchronization process.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run the sync cycle once and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 3600, Usage: "Run sync every N seconds. Overrides --once."},
			&cli.StringFlag{Name: "schedule", Usage: "Run sync on a cron schedule, e.g. \"0 7 * * *\". Overrides --watch."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			if err := cfg.Validate(); err != nil {
				return err
			}
			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			spec := c.String("schedule")
			if spec == "" && c.IsSet("watch") {
				spec = fmt.Sprintf("@every %s", time.Duration(c.Int("watch"))*time.Second)
			}

			run := func() error { return runSync(c.Context, logger, cfg, c.Bool("dry-run")) }

			if spec == "" { // --once is the default behavior if no schedule is set
				logger.Info("Running a single sync cycle.")
				if err := run(); err != nil {
					return fmt.Errorf("single sync cycle failed: %w", err)
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return schedule(ctx, logger, spec, run)
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
