package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PresignExpiry bounds how long issued upload and retrieval URLs stay
// valid.
const PresignExpiry = 15 * time.Minute

// UploadClient fronts the object storage that accepts raw document
// uploads. The core pipeline never moves bytes through it; it only hands
// presigned URLs to the presentation layer and later consumes the
// resulting retrieval URL through intake.
type UploadClient struct {
	client     *minio.Client
	bucketName string
}

// NewUploadClient initializes the MinIO-backed upload client and makes
// sure the bucket exists.
func NewUploadClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*UploadClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	uc := &UploadClient{
		client:     client,
		bucketName: bucketName,
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return uc, nil
}

// ObjectKey derives a collision-free storage key for a fresh upload.
func ObjectKey(filename string) string {
	d := time.Now()
	return fmt.Sprintf("uploads/%d/%02d/%02d/%s-%s", d.Year(), d.Month(), d.Day(), uuid.New(), filename)
}

// PresignPut issues a temporary URL the browser can PUT the raw document
// bytes to.
func (uc *UploadClient) PresignPut(ctx context.Context, objectKey string) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.presign_put",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
		),
	)
	defer span.End()

	u, err := uc.client.PresignedPutObject(ctx, uc.bucketName, objectKey, PresignExpiry)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to presign put: %w", err)
	}

	return u.String(), nil
}

// PresignGet issues the retrieval URL for an uploaded object. The staging
// pipeline later fetches document bytes from this URL. contentType, when
// set, overrides the Content-Type the object is served with.
func (uc *UploadClient) PresignGet(ctx context.Context, objectKey, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.presign_get",
		trace.WithAttributes(
			attribute.String("object_key", objectKey),
		),
	)
	defer span.End()

	params := url.Values{}
	if contentType != "" {
		params.Set("response-content-type", contentType)
	}

	u, err := uc.client.PresignedGetObject(ctx, uc.bucketName, objectKey, PresignExpiry, params)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to presign get: %w", err)
	}

	return u.String(), nil
}
