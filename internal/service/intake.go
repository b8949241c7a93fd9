package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/apperr"
	"github.com/smartprint/printstage/internal/models"
)

// IntakeService registers freshly uploaded documents against their
// owner.
type IntakeService struct {
	registry Registry
	users    UserDirectory
	log      *slog.Logger
}

// NewIntakeService creates the upload intake service.
func NewIntakeService(registry Registry, users UserDirectory, log *slog.Logger) *IntakeService {
	return &IntakeService{
		registry: registry,
		users:    users,
		log:      log,
	}
}

// Register creates a pending file record for the uploaded document and
// links it into the owner's file list. Validation happens before any
// side effect; a failed index append is logged but not fatal, since the
// file row itself is the source of truth and the index is rebuilt by
// ReconcileIndex.
func (s *IntakeService) Register(ctx context.Context, userID, url, filename, fileType string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "register_file",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("file_name", filename),
		),
	)
	defer span.End()

	if url == "" || filename == "" || fileType == "" {
		return nil, apperr.ErrValidation
	}

	if _, err := s.users.ResolveUser(ctx, userID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	file := &models.File{
		ID:         uuid.New().String(),
		UserID:     userID,
		URL:        url,
		Filename:   filename,
		FileType:   fileType,
		UploadDate: time.Now(),
		Status:     models.StatusPending,
	}

	if err := s.registry.CreateFile(ctx, file); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.registry.AppendUserFile(ctx, userID, file.ID); err != nil {
		s.log.Error("failed to index file for user", "user_id", userID, "file_id", file.ID, "error", err)
	}

	s.log.Info("file registered", "user_id", userID, "file_id", file.ID, "filename", filename)
	span.SetAttributes(attribute.String("file_id", file.ID))
	return file, nil
}

// ReconcileIndex rebuilds the user's denormalized file list from the
// authoritative ownership view in the files table.
func (s *IntakeService) ReconcileIndex(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "reconcile_index",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	owned, err := s.registry.ListFileIDsByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	indexed, err := s.registry.ListUserFileIndex(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if equalIDs(owned, indexed) {
		return nil
	}

	s.log.Info("rebuilding user file index", "user_id", userID, "owned", len(owned), "indexed", len(indexed))
	if err := s.registry.ReplaceUserFiles(ctx, userID, owned); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Bool("rebuilt", true))
	return nil
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
