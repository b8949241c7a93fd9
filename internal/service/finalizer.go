package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/models"
	"github.com/smartprint/printstage/internal/storage"
)

// FinalizerService completes an order: it removes the staged copies of
// the user's pending files and transitions them to completed.
type FinalizerService struct {
	registry Registry
	staging  Staging
	users    UserDirectory
	log      *slog.Logger
}

// NewFinalizerService creates the finalizer.
func NewFinalizerService(registry Registry, staging Staging, users UserDirectory, log *slog.Logger) *FinalizerService {
	return &FinalizerService{
		registry: registry,
		staging:  staging,
		users:    users,
		log:      log,
	}
}

// CompleteAll removes the staged copy of every pending file of the user,
// then marks them all completed in one bulk update, returning how many
// files transitioned. Cleanup is best effort: a missing copy is a no-op
// and any other removal failure is logged without blocking the status
// transition, so a stale copy may survive a finalize. The bulk update is
// scoped to (user, pending), which makes repeated calls idempotent; if
// it fails, no file changes status.
func (s *FinalizerService) CompleteAll(ctx context.Context, userID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "complete_all",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	if _, err := s.users.ResolveUser(ctx, userID); err != nil {
		span.RecordError(err)
		return 0, err
	}

	files, err := s.registry.ListFilesByStatus(ctx, userID, models.StatusPending)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	for _, file := range files {
		key := storage.StagedKey(file.ID, file.Filename)
		if err := s.staging.Remove(ctx, key); err != nil {
			s.log.Error("failed to remove staged copy", "file_id", file.ID, "staged_key", key, "error", err)
		}
	}

	count, err := s.registry.BulkUpdateStatus(ctx, userID, models.StatusPending, models.StatusCompleted)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	s.log.Info("order finalized", "user_id", userID, "files_completed", count)
	span.SetAttributes(attribute.Int64("files_completed", count))
	return count, nil
}
