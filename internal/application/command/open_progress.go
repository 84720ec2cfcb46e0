package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ivrit-hub/progress-hub/internal/domain/progress"
	"github.com/ivrit-hub/progress-hub/internal/domain/shared"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPEN PROGRESS COMMAND
// Creates the empty progress record when an account is created.
// Idempotent: opening an existing record returns it unchanged.
// ══════════════════════════════════════════════════════════════════════════════

// OpenProgressCommand contains the data to open a progress record.
type OpenProgressCommand struct {
	UserID string
}

// Validate validates the command.
func (c OpenProgressCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// OpenProgressResult contains the opened record.
type OpenProgressResult struct {
	Record progress.Record

	// Created is false when the record already existed.
	Created bool
}

// OpenProgressHandler handles the OpenProgressCommand.
type OpenProgressHandler struct {
	uowFactory progress.UnitOfWorkFactory
	publisher  shared.EventPublisher
	clock      timeutil.Clock
	logger     *slog.Logger
}

// NewOpenProgressHandler creates a new OpenProgressHandler.
func NewOpenProgressHandler(
	uowFactory progress.UnitOfWorkFactory,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *OpenProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenProgressHandler{
		uowFactory: uowFactory,
		publisher:  publisher,
		clock:      clock,
		logger:     logger.With("handler", "open_progress"),
	}
}

// Handle executes the open progress command.
func (h *OpenProgressHandler) Handle(ctx context.Context, cmd OpenProgressCommand) (*OpenProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("open_progress: %w", err)
	}

	now := h.clock.Now()
	rec, err := progress.NewRecord(cmd.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("open_progress: %w", err)
	}

	uow, err := h.uowFactory.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("open_progress: begin: %w", err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	err = uow.Records().Create(ctx, rec)
	switch {
	case shared.IsAlreadyExists(err):
		existing, getErr := uow.Records().Get(ctx, cmd.UserID)
		if getErr != nil {
			return nil, fmt.Errorf("open_progress: load existing: %w", getErr)
		}
		return &OpenProgressResult{Record: *existing, Created: false}, nil
	case err != nil:
		return nil, fmt.Errorf("open_progress: create: %w", err)
	}

	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("open_progress: commit: %w", err)
	}

	h.logger.Info("progress record opened", "user_id", cmd.UserID)
	if h.publisher != nil {
		if err := h.publisher.Publish(shared.NewProgressOpenedEvent(cmd.UserID, now)); err != nil {
			h.logger.Error("failed to publish event", "error", err)
		}
	}

	return &OpenProgressResult{Record: rec, Created: true}, nil
}
