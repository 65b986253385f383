package blob

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSArchive implements Archive on Google Cloud Storage.
type GCSArchive struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCSArchive initializes a GCS client and verifies the bucket is
// reachable, failing fast on startup misconfiguration. Authentication uses
// Application Default Credentials.
func NewGCSArchive(ctx context.Context, bucket string, logger *zap.Logger) (*GCSArchive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close gcs client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}
	return &GCSArchive{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Save uploads the data to the named object. Close finalizes the upload, so
// its error is the upload outcome.
func (g *GCSArchive) Save(ctx context.Context, objectName string, data []byte) error {
	wc := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			g.logger.Warn("close gcs writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close gcs writer for object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSArchive) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
