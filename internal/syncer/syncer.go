package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"loancal/internal/models"
)

// Calendar is the remote calendar the loans are mirrored into.
// Implementations are bound to one calendar and one set of credentials.
type Calendar interface {
	ListEvents(ctx context.Context) ([]models.Event, error)
	CreateEvent(ctx context.Context, loan models.Loan) error
	UpdateEvent(ctx context.Context, loan models.Loan, matched models.Event) error
}

// Result counts the actions taken by one sync cycle.
type Result struct {
	Created   int
	Updated   int
	Unchanged int
}

// Syncer mirrors loans into a calendar.
type Syncer struct {
	logger   *slog.Logger
	calendar Calendar
	dryRun   bool
}

// NewSyncer creates a new Syncer.
func NewSyncer(logger *slog.Logger, cal Calendar, dryRun bool) (*Syncer, error) {
	if cal == nil {
		return nil, errors.New("calendar is required")
	}
	return &Syncer{logger: logger, calendar: cal, dryRun: dryRun}, nil
}

// Sync performs a full synchronization cycle. Calls are made one at a time in
// loan order and the first failure aborts the cycle; changes already applied
// stay applied and are picked up as no-ops by the next cycle.
func (s *Syncer) Sync(ctx context.Context, loans []models.Loan) (Result, error) {
	s.logger.Info("Starting sync cycle.", "loans", len(loans))

	events, err := s.calendar.ListEvents(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list calendar events: %w", err)
	}
	s.logger.Info("Fetched calendar events.", "count", len(events))

	var res Result
	for _, action := range Reconcile(loans, events) {
		if err := s.apply(ctx, action); err != nil {
			return res, err
		}
		switch action.Kind {
		case ActionCreate:
			res.Created++
		case ActionUpdate:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	s.logger.Info("Sync cycle finished.", "created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged)
	return res, nil
}

// apply performs the remote call for a single action.
func (s *Syncer) apply(ctx context.Context, action Action) error {
	loan := action.Loan
	logger := s.logger.With("id", loan.ID(), "title", loan.Title, "dueDate", loan.DueDate.Format(models.DateLayout))

	switch action.Kind {
	case ActionNoOp:
		logger.Debug("Event up to date, skipping.")
		return nil
	case ActionCreate:
		if s.dryRun {
			logger.Info("[DRY RUN] Would create event.")
			return nil
		}
		logger.Info("New loan found, creating event.")
		if err := s.calendar.CreateEvent(ctx, loan); err != nil {
			return fmt.Errorf("failed to create event for %q: %w", loan.Title, err)
		}
	case ActionUpdate:
		if s.dryRun {
			logger.Info("[DRY RUN] Would update event.", "reserved", loan.Reserved)
			return nil
		}
		logger.Info("Event is stale, updating.", "previousEnd", action.Event.End.Format(models.DateLayout), "reserved", loan.Reserved)
		if err := s.calendar.UpdateEvent(ctx, loan, *action.Event); err != nil {
			return fmt.Errorf("failed to update event for %q: %w", loan.Title, err)
		}
	}
	return nil
}
