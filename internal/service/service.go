// Package service implements the staging pipeline: upload intake,
// staging of pending files, and order finalization.
package service

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"

	"github.com/smartprint/printstage/internal/models"
)

var tracer = otel.Tracer("printstage-service")

// StagedURLPrefix is where the presentation layer finds staged copies.
const StagedURLPrefix = "/temp/"

// Registry is the subset of record-store operations the pipeline uses.
type Registry interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpsertUserByEmail(ctx context.Context, email, name, image string) (*models.User, error)
	CreateFile(ctx context.Context, file *models.File) error
	AppendUserFile(ctx context.Context, userID, fileID string) error
	ListFilesByStatus(ctx context.Context, userID string, status models.FileStatus) ([]*models.File, error)
	BulkUpdateStatus(ctx context.Context, userID string, from, to models.FileStatus) (int64, error)
	ListFileIDsByUser(ctx context.Context, userID string) ([]string, error)
	ListUserFileIndex(ctx context.Context, userID string) ([]string, error)
	ReplaceUserFiles(ctx context.Context, userID string, fileIDs []string) error
}

// Staging is the staging-store surface the pipeline needs.
type Staging interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Remove(ctx context.Context, key string) error
}

// UserCache caches resolved user records.
type UserCache interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SetUser(ctx context.Context, user *models.User) error
	InvalidateUser(ctx context.Context, userID string) error
}

// UserDirectory resolves a caller-supplied user id to a stored user.
type UserDirectory interface {
	ResolveUser(ctx context.Context, userID string) (*models.User, error)
}
