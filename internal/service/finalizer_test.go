package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/smartprint/printstage/internal/apperr"
	"github.com/smartprint/printstage/internal/logging"
	"github.com/smartprint/printstage/internal/models"
	"github.com/smartprint/printstage/internal/storage"
)

func newFinalizerEnv(t *testing.T, registry *fakeRegistry) (*FinalizerService, *blob.Bucket) {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	finalizer := NewFinalizerService(registry, storage.NewStagingStoreWithBucket(bucket), registry, logging.Discard())
	return finalizer, bucket
}

func stageCopy(t *testing.T, bucket *blob.Bucket, file *models.File) {
	t.Helper()
	key := storage.StagedKey(file.ID, file.Filename)
	require.NoError(t, bucket.WriteAll(context.Background(), key, []byte("staged"), nil))
}

func TestCompleteAll_TransitionsAndCleansUp(t *testing.T) {
	user := &models.User{ID: "u1", Email: "u1@example.com"}
	registry := newFakeRegistry(user)
	f1 := pendingFile("f1", "u1", "https://remote/a.pdf", "a.pdf")
	f2 := pendingFile("f2", "u1", "https://remote/b.pdf", "b.pdf")
	registry.addFile(f1)
	registry.addFile(f2)

	finalizer, bucket := newFinalizerEnv(t, registry)
	ctx := context.Background()
	stageCopy(t, bucket, f1)
	stageCopy(t, bucket, f2)

	count, err := finalizer.CompleteAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, models.StatusCompleted, registry.fileByID("f1").Status)
	assert.Equal(t, models.StatusCompleted, registry.fileByID("f2").Status)

	for _, f := range []*models.File{f1, f2} {
		exists, err := bucket.Exists(ctx, storage.StagedKey(f.ID, f.Filename))
		require.NoError(t, err)
		assert.False(t, exists)
	}
}

func TestCompleteAll_Idempotent(t *testing.T) {
	user := &models.User{ID: "u1", Email: "u1@example.com"}
	registry := newFakeRegistry(user)
	registry.addFile(pendingFile("f1", "u1", "https://remote/a.pdf", "a.pdf"))

	finalizer, _ := newFinalizerEnv(t, registry)
	ctx := context.Background()

	first, err := finalizer.CompleteAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := finalizer.CompleteAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), second)
	assert.Equal(t, models.StatusCompleted, registry.fileByID("f1").Status)
}

func TestCompleteAll_MissingStagedCopyIsNoOp(t *testing.T) {
	user := &models.User{ID: "u1", Email: "u1@example.com"}
	registry := newFakeRegistry(user)
	registry.addFile(pendingFile("f1", "u1", "https://remote/a.pdf", "a.pdf"))

	// Nothing staged; finalize still transitions the record.
	finalizer, _ := newFinalizerEnv(t, registry)

	count, err := finalizer.CompleteAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCompleteAll_CleanupFailureDoesNotBlockTransition(t *testing.T) {
	user := &models.User{ID: "u1", Email: "u1@example.com"}
	registry := newFakeRegistry(user)
	registry.addFile(pendingFile("f1", "u1", "https://remote/a.pdf", "a.pdf"))

	staging := &failingStaging{removeErr: errors.New("permission denied")}
	finalizer := NewFinalizerService(registry, staging, registry, logging.Discard())

	count, err := finalizer.CompleteAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, staging.removes)
}

func TestCompleteAll_BulkUpdateFailureLeavesStatusUnchanged(t *testing.T) {
	user := &models.User{ID: "u1", Email: "u1@example.com"}
	registry := newFakeRegistry(user)
	registry.addFile(pendingFile("f1", "u1", "https://remote/a.pdf", "a.pdf"))
	registry.bulkErr = &apperr.StorageError{Op: "bulk update status", Err: errors.New("connection lost")}

	finalizer, _ := newFinalizerEnv(t, registry)

	_, err := finalizer.CompleteAll(context.Background(), "u1")
	var storageErr *apperr.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, models.StatusPending, registry.fileByID("f1").Status)
}

func TestCompleteAll_UnknownUser(t *testing.T) {
	registry := newFakeRegistry()
	finalizer, _ := newFinalizerEnv(t, registry)

	_, err := finalizer.CompleteAll(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCompleteAll_ScopedToUser(t *testing.T) {
	u1 := &models.User{ID: "u1", Email: "u1@example.com"}
	u2 := &models.User{ID: "u2", Email: "u2@example.com"}
	registry := newFakeRegistry(u1, u2)
	registry.addFile(pendingFile("f1", "u1", "https://remote/a.pdf", "a.pdf"))
	registry.addFile(pendingFile("f2", "u2", "https://remote/b.pdf", "b.pdf"))

	finalizer, _ := newFinalizerEnv(t, registry)

	count, err := finalizer.CompleteAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, models.StatusCompleted, registry.fileByID("f1").Status)
	assert.Equal(t, models.StatusPending, registry.fileByID("f2").Status)
}

// Staging after a finalize finds nothing pending: status only ever moves
// forward.
func TestStageCompleteStageRoundTrip(t *testing.T) {
	srvContent := "roundtrip"
	srv := newStaticServer(t, srvContent)

	user := &models.User{ID: "u1", Email: "u1@example.com"}
	registry := newFakeRegistry(user)
	registry.addFile(pendingFile("f1", "u1", srv+"/a.pdf", "a.pdf"))

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	store := storage.NewStagingStoreWithBucket(bucket)
	stager := NewStagerService(registry, store, registry, nil, 5*time.Second, logging.Discard())
	finalizer := NewFinalizerService(registry, store, registry, logging.Discard())

	ctx := context.Background()

	staged, err := stager.StageAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, staged, 1)
	require.NoError(t, staged[0].Err)
	assert.True(t, strings.HasPrefix(staged[0].LocalURL, StagedURLPrefix))

	count, err := finalizer.CompleteAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	staged, err = stager.StageAll(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, staged)
}
