package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"loancal/internal/auth"
	"loancal/internal/config"
	"loancal/internal/google"
	"loancal/internal/icloud"
	"loancal/internal/models"
	"loancal/internal/opac"
	"loancal/internal/syncer"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// runSync performs one complete run: loans, token, calendar, reconciliation.
func runSync(ctx context.Context, logger *slog.Logger, cfg *config.Config, dryRun bool) error {
	logger = logger.With("run", uuid.NewString())

	loans, err := fetchLoans(ctx, logger, cfg)
	if err != nil {
		return err
	}

	cal, err := newCalendar(ctx, logger, cfg)
	if err != nil {
		return err
	}

	s, err := syncer.NewSyncer(logger, cal, dryRun)
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}
	_, err = s.Sync(ctx, loans)
	return err
}

// fetchLoans logs in to the portal with a session scoped to this call.
func fetchLoans(ctx context.Context, logger *slog.Logger, cfg *config.Config) ([]models.Loan, error) {
	session, err := opac.NewSession(logger, cfg.Portal.BaseURL)
	if err != nil {
		return nil, err
	}
	if err := session.Login(ctx, cfg.Portal.UserID, cfg.Portal.Password); err != nil {
		return nil, err
	}
	return session.Loans(ctx, cfg.Portal.ListCount)
}

func newCalendar(ctx context.Context, logger *slog.Logger, cfg *config.Config) (syncer.Calendar, error) {
	switch cfg.Backend {
	case config.BackendCalDAV:
		client, err := icloud.NewClient(ctx, logger, cfg.CalDAV.Endpoint, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.CalendarName)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		return client, nil
	default:
		cred, err := loadCredential(cfg)
		if err != nil {
			return nil, err
		}
		token, err := auth.GetAccessToken(ctx, cred)
		if err != nil {
			return nil, fmt.Errorf("failed to get access token: %w", err)
		}
		client, err := google.NewClient(ctx, logger, cfg.Google.CalendarID, token)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
		return client, nil
	}
}

// loadCredential prefers the service account key file over inline settings.
func loadCredential(cfg *config.Config) (auth.Credential, error) {
	cred := auth.Credential{
		Email:        cfg.Google.ClientEmail,
		PrivateKey:   cfg.Google.PrivateKey,
		PrivateKeyID: cfg.Google.PrivateKeyID,
	}
	if cfg.Google.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.Google.CredentialsFile)
		if err != nil {
			return auth.Credential{}, fmt.Errorf("failed to read credentials file: %w", err)
		}
		if cred, err = auth.CredentialFromJSON(data); err != nil {
			return auth.Credential{}, err
		}
	}
	cred.TokenURL = cfg.Google.TokenURL
	return cred, nil
}

// schedule runs fn immediately and then on every tick of spec until ctx is done.
// A run that is still going when the next tick fires makes that tick a no-op.
func schedule(ctx context.Context, logger *slog.Logger, spec string, fn func() error) error {
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	job := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		if err := fn(); err != nil {
			logger.Error("Sync cycle failed", "error", err)
		}
	}))
	if _, err := c.AddJob(spec, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger.Info("Starting scheduler.", "schedule", spec)
	job.Run()
	c.Start()

	<-ctx.Done()
	logger.Info("Stopping scheduler, waiting for the running cycle.")
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

func printLoans(w io.Writer, loans []models.Loan) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DUE\tLENT\tRESERVED\tTITLE\tID")
	for _, l := range loans {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", l.DueDate.Format(models.DateLayout), l.LentDate.Format(models.DateLayout), l.Reserved, l.Title, l.ID())
	}
	tw.Flush()
}
