// Package memory provides an in-memory path/status store for development and
// testing. Mutations are mirrored onto the change log the same way the
// Postgres implementation mirrors them.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sitewatch/sitewatch/internal/changelog"
	"github.com/sitewatch/sitewatch/internal/store"
)

// Store keeps path, status, and occurrence rows in maps guarded by a single
// RWMutex. Each point write is atomic; there is no cross-record transaction.
type Store struct {
	mu          sync.RWMutex
	paths       map[string]map[string]store.PathRecord
	statuses    map[string]store.Status
	occurrences map[string]map[string]store.KeyphraseOccurrence

	log   changelog.Appender
	clock func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithChangeLog mirrors path and status mutations onto the given log.
func WithChangeLog(log changelog.Appender) Option {
	return func(s *Store) { s.log = log }
}

// WithClock overrides the timestamp source (useful for testing).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		paths:       make(map[string]map[string]store.PathRecord),
		statuses:    make(map[string]store.Status),
		occurrences: make(map[string]map[string]store.KeyphraseOccurrence),
		clock:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertPath writes the (site, path) record, overwriting any existing row.
// Both timestamps are regenerated on overwrite.
func (s *Store) UpsertPath(_ context.Context, site, path string) error {
	now := s.clock()
	rec := store.PathRecord{Site: site, Path: path, CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	rows, ok := s.paths[site]
	if !ok {
		rows = make(map[string]store.PathRecord)
		s.paths[site] = rows
	}
	old, existed := rows[path]
	rows[path] = rec
	s.mu.Unlock()

	op := changelog.OpInsert
	var oldImage map[string]string
	if existed {
		op = changelog.OpModify
		oldImage = pathImage(old)
	}
	s.append(changelog.Record{
		Op:           op,
		PartitionKey: store.SiteKey(site),
		SortKey:      store.PathSortKey(path),
		Old:          oldImage,
		New:          pathImage(rec),
		At:           now,
	})
	return nil
}

// GetPath returns the record for (site, path), reporting absence via the
// boolean rather than an error.
func (s *Store) GetPath(_ context.Context, site, path string) (store.PathRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.paths[site][path]
	return rec, ok, nil
}

// ListPaths returns every discovered path for the site, ordered by path.
func (s *Store) ListPaths(_ context.Context, site string) ([]store.PathRecord, error) {
	s.mu.RLock()
	rows := s.paths[site]
	out := make([]store.PathRecord, 0, len(rows))
	for _, rec := range rows {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// DeletePaths removes every path row for the site.
func (s *Store) DeletePaths(_ context.Context, site string) error {
	now := s.clock()

	s.mu.Lock()
	rows := s.paths[site]
	removed := make([]store.PathRecord, 0, len(rows))
	for _, rec := range rows {
		removed = append(removed, rec)
	}
	delete(s.paths, site)
	s.mu.Unlock()

	for _, rec := range removed {
		s.append(changelog.Record{
			Op:           changelog.OpRemove,
			PartitionKey: store.SiteKey(site),
			SortKey:      store.PathSortKey(rec.Path),
			Old:          pathImage(rec),
			At:           now,
		})
	}
	return nil
}

// GetStatus returns the crawl status for the site.
func (s *Store) GetStatus(_ context.Context, site string) (store.Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[site]
	return status, ok, nil
}

// SetStatus writes the crawl status row for the site.
func (s *Store) SetStatus(_ context.Context, site string, status store.Status) error {
	now := s.clock()

	s.mu.Lock()
	old, existed := s.statuses[site]
	s.statuses[site] = status
	s.mu.Unlock()

	op := changelog.OpInsert
	var oldImage map[string]string
	if existed {
		op = changelog.OpModify
		oldImage = statusImage(site, old)
	}
	s.append(changelog.Record{
		Op:           op,
		PartitionKey: store.SiteKey(site),
		SortKey:      store.StatusSortKey,
		Old:          oldImage,
		New:          statusImage(site, status),
		At:           now,
	})
	return nil
}

// DeleteStatus removes the status row for the site. Deleting an absent row is
// a no-op, not an error.
func (s *Store) DeleteStatus(_ context.Context, site string) error {
	now := s.clock()

	s.mu.Lock()
	old, existed := s.statuses[site]
	delete(s.statuses, site)
	s.mu.Unlock()

	if existed {
		s.append(changelog.Record{
			Op:           changelog.OpRemove,
			PartitionKey: store.SiteKey(site),
			SortKey:      store.StatusSortKey,
			Old:          statusImage(site, old),
			At:           now,
		})
	}
	return nil
}

// GetOccurrence returns the stored count for (site, path-or-TOTAL, phrase).
func (s *Store) GetOccurrence(_ context.Context, site, path, phrase string) (store.KeyphraseOccurrence, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	occ, ok := s.occurrences[site][store.PhraseSortKey(path, phrase)]
	return occ, ok, nil
}

// PutOccurrence overwrites the occurrence row.
func (s *Store) PutOccurrence(_ context.Context, occ store.KeyphraseOccurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.occurrences[occ.Site]
	if !ok {
		rows = make(map[string]store.KeyphraseOccurrence)
		s.occurrences[occ.Site] = rows
	}
	rows[store.PhraseSortKey(occ.Path, occ.Phrase)] = occ
	return nil
}

// ListOccurrences returns every occurrence row for the site ordered by sort key.
func (s *Store) ListOccurrences(_ context.Context, site string) ([]store.KeyphraseOccurrence, error) {
	s.mu.RLock()
	rows := s.occurrences[site]
	keys := make([]string, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]store.KeyphraseOccurrence, 0, len(keys))
	for _, key := range keys {
		out = append(out, rows[key])
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) append(rec changelog.Record) {
	if s.log == nil {
		return
	}
	s.log.Append(rec)
}

func pathImage(rec store.PathRecord) map[string]string {
	return map[string]string{
		"site":       rec.Site,
		"path":       rec.Path,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func statusImage(site string, status store.Status) map[string]string {
	return map[string]string{
		"site":   site,
		"status": string(status),
	}
}
