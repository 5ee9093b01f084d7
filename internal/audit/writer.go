// Package audit provides the append-only audit trail writer.
package audit

import (
	"context"
	"log/slog"

	"github.com/fleetgrid/ops-api/internal/models"
	"github.com/fleetgrid/ops-api/internal/store"
)

// Writer appends immutable audit entries. It runs after, and independently
// of, the business transaction it describes: a failure here is caught,
// escalated once to the fallback store, and never surfaced to the caller.
// Delivery is at-least-effort, not at-least-once — an entry is lost if both
// the primary and fallback writes fail. That is an accepted limitation;
// reconciliation of the fallback table is a manual process.
type Writer struct {
	store  store.Store
	logger *slog.Logger
}

// NewWriter creates a new audit writer.
func NewWriter(st store.Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:  st,
		logger: logger,
	}
}

// Record appends an audit entry and returns its ID, or "" when both the
// primary and fallback writes fail. It never returns an error and never
// panics the triggering business operation.
func (w *Writer) Record(ctx context.Context, action, actorID string, actorRole models.Role, targetCollection, targetID string, auditContext map[string]any) string {
	entry := &models.AuditLogEntry{
		Action:           action,
		ActorID:          actorID,
		ActorRole:        actorRole,
		TargetCollection: targetCollection,
		TargetID:         targetID,
		Context:          auditContext,
	}

	err := w.store.Audit().Append(ctx, entry)
	if err == nil {
		return entry.ID
	}

	w.logger.Error("audit write failed, attempting fallback",
		"action", action,
		"target", targetCollection+"/"+targetID,
		"error", err,
	)

	failed := &models.FailedAuditLogEntry{
		AuditLogEntry: *entry,
		Error:         err.Error(),
	}
	failed.ID = "" // fallback row gets its own identity

	if fbErr := w.store.Audit().AppendFailed(ctx, failed); fbErr != nil {
		// No further fallback tier exists; log locally and drop.
		w.logger.Error("fallback audit write failed, entry dropped",
			"action", action,
			"target", targetCollection+"/"+targetID,
			"error", fbErr,
		)
		return ""
	}

	return failed.ID
}
