package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/smartprint/printstage/internal/apperr"
)

var tracer = otel.Tracer("printstage-storage")

// StagingStore holds the local ephemeral copies of remote files while an
// order is being reviewed. Keys are derived deterministically from the
// file record, so restaging the same file overwrites rather than
// accumulates. Copies live only between staging and finalization; the
// persistent record store never references them.
type StagingStore struct {
	bucket *blob.Bucket
}

// NewStagingStore opens the staging bucket from a gocloud URL
// (file://... in production).
func NewStagingStore(ctx context.Context, bucketURL string) (*StagingStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging bucket: %w", err)
	}
	return &StagingStore{bucket: bucket}, nil
}

// NewStagingStoreWithBucket wraps an existing bucket. Used in tests with
// an in-memory bucket.
func NewStagingStoreWithBucket(bucket *blob.Bucket) *StagingStore {
	return &StagingStore{bucket: bucket}
}

// Close closes the underlying bucket.
func (ss *StagingStore) Close() error {
	return ss.bucket.Close()
}

// StagedKey derives the staging key for a file record. The same file
// always maps to the same key.
func StagedKey(fileID, filename string) string {
	return fmt.Sprintf("%s-%s", fileID, path.Base(filename))
}

// Put writes a staged copy under key. The copy becomes visible only once
// the write has fully completed; a failed write leaves nothing at key.
func (ss *StagingStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	ctx, span := tracer.Start(ctx, "staging.put",
		trace.WithAttributes(
			attribute.String("staged_key", key),
		),
	)
	defer span.End()

	// Canceling the writer's context before Close aborts the commit, so
	// a mid-copy failure never exposes a partial file.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := ss.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return &apperr.WriteError{Key: key, Err: err}
	}

	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		w.Close()
		span.RecordError(err)
		return &apperr.WriteError{Key: key, Err: err}
	}

	if err := w.Close(); err != nil {
		span.RecordError(err)
		return &apperr.WriteError{Key: key, Err: err}
	}

	span.SetAttributes(attribute.Int64("size_bytes", n))
	return nil
}

// Remove deletes a staged copy. Removing a key that does not exist is a
// no-op, so removal is idempotent.
func (ss *StagingStore) Remove(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "staging.remove",
		trace.WithAttributes(
			attribute.String("staged_key", key),
		),
	)
	defer span.End()

	err := ss.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		span.RecordError(err)
		return fmt.Errorf("failed to delete staged copy: %w", err)
	}

	return nil
}

// Exists reports whether a staged copy is present under key.
func (ss *StagingStore) Exists(ctx context.Context, key string) (bool, error) {
	return ss.bucket.Exists(ctx, key)
}

// ReadAll returns the full content of a staged copy.
func (ss *StagingStore) ReadAll(ctx context.Context, key string) ([]byte, error) {
	return ss.bucket.ReadAll(ctx, key)
}
