// Package blob defines the archive storage used for fetched page snapshots.
// The abstraction keeps the crawler independent of a specific backend
// (Google Cloud Storage, the local filesystem, or memory).
package blob

import "context"

// Archive persists raw page bodies under an object key.
type Archive interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpArchive discards every snapshot. Useful for dry runs where pages are
// fetched but not archived.
type NoOpArchive struct{}

// Save for NoOpArchive does nothing.
func (n *NoOpArchive) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
