// Package store declares the path/status store contract shared by the
// in-memory and Postgres implementations.
package store

import (
	"context"
	"time"
)

// Status is the per-site crawl lifecycle state.
type Status string

// Crawl status values persisted under the status sort key.
const (
	StatusStarted  Status = "STARTED"
	StatusComplete Status = "COMPLETE"
)

// TotalMarker is the pseudo-path used by site-wide keyphrase rollup rows.
const TotalMarker = "TOTAL"

// PathRecord is one discovered (site, path) pair. A re-discovery overwrites
// the record wholesale, regenerating both timestamps.
type PathRecord struct {
	Site      string    `json:"site"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyphraseOccurrence counts matches of one phrase on one page, or site-wide
// when Path is TotalMarker.
type KeyphraseOccurrence struct {
	Site   string `json:"site"`
	Path   string `json:"path"`
	Phrase string `json:"phrase"`
	Count  int    `json:"count"`
}

// Store persists discovered paths and per-site crawl status. Absent records
// are reported via the boolean return, never as an error. All writes are
// idempotent point overwrites keyed by composite identity.
type Store interface {
	UpsertPath(ctx context.Context, site, path string) error
	GetPath(ctx context.Context, site, path string) (PathRecord, bool, error)
	ListPaths(ctx context.Context, site string) ([]PathRecord, error)
	DeletePaths(ctx context.Context, site string) error

	GetStatus(ctx context.Context, site string) (Status, bool, error)
	SetStatus(ctx context.Context, site string, status Status) error
	DeleteStatus(ctx context.Context, site string) error
}

// OccurrenceStore persists keyphrase occurrence counts. The aggregator
// read-merge-writes these rows.
type OccurrenceStore interface {
	GetOccurrence(ctx context.Context, site, path, phrase string) (KeyphraseOccurrence, bool, error)
	PutOccurrence(ctx context.Context, occ KeyphraseOccurrence) error
	ListOccurrences(ctx context.Context, site string) ([]KeyphraseOccurrence, error)
}
