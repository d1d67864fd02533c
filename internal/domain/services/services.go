// Package services contains domain business logic.
package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/ports"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = func() time.Time { return time.Now().UTC() }

// generateUUID returns a new UUID string.
func generateUUID() string {
	return uuid.New().String()
}

// orDiscard returns logger, or a logger that drops everything when nil.
func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// auditor writes best-effort audit records. A failed audit write never fails
// the operation that produced it.
type auditor struct {
	store  ports.CanonStore
	logger *slog.Logger
}

func (a auditor) record(ctx context.Context, action, entryID string, details map[string]any) {
	if err := a.store.LogAction(ctx, action, entryID, details); err != nil {
		a.logger.WarnContext(ctx, "audit write failed",
			"action", action,
			"entry_id", entryID,
			"error", err,
		)
	}
}
