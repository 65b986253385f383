// Package notify maintains live-subscriber registrations and fans store
// mutations out to their callback endpoints.
package notify

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// ConnectionRecord is one live subscriber registration. Identity is the
// connection id; the listening key selects which mutations the subscriber
// receives.
type ConnectionRecord struct {
	ConnectionID     string `json:"connection_id"`
	ListeningKey     string `json:"listening_key"`
	CallbackEndpoint string `json:"callback_endpoint"`
}

// Registry stores connection registrations. Registration and removal are
// explicit lifecycle events only; delivery failures never evict an entry.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]ConnectionRecord
	byKey     map[string]map[string]struct{}
	keyFormat *regexp.Regexp
}

// NewRegistry builds an empty registry. keyPattern constrains the listening
// keys subscribers may register under; an empty pattern accepts any
// non-empty key.
func NewRegistry(keyPattern string) (*Registry, error) {
	var format *regexp.Regexp
	if keyPattern != "" {
		var err error
		format, err = regexp.Compile(keyPattern)
		if err != nil {
			return nil, fmt.Errorf("compile listening key pattern: %w", err)
		}
	}
	return &Registry{
		byID:      make(map[string]ConnectionRecord),
		byKey:     make(map[string]map[string]struct{}),
		keyFormat: format,
	}, nil
}

// Register stores a connection. Re-registering an existing connection id
// moves it to the new listening key.
func (r *Registry) Register(rec ConnectionRecord) error {
	if rec.ConnectionID == "" {
		return fmt.Errorf("connection id is required")
	}
	if rec.ListeningKey == "" {
		return fmt.Errorf("listening key is required")
	}
	if r.keyFormat != nil && !r.keyFormat.MatchString(rec.ListeningKey) {
		return fmt.Errorf("listening key %q does not match the configured pattern", rec.ListeningKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byID[rec.ConnectionID]; ok {
		r.dropFromIndex(prev)
	}
	r.byID[rec.ConnectionID] = rec
	ids, ok := r.byKey[rec.ListeningKey]
	if !ok {
		ids = make(map[string]struct{})
		r.byKey[rec.ListeningKey] = ids
	}
	ids[rec.ConnectionID] = struct{}{}
	return nil
}

// Unregister removes a connection. Removing an unknown id is not an error.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[connectionID]
	if !ok {
		return
	}
	delete(r.byID, connectionID)
	r.dropFromIndex(rec)
}

// ListListeners returns every registration for a listening key, ordered by
// connection id for deterministic fan-out.
func (r *Registry) ListListeners(listeningKey string) []ConnectionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byKey[listeningKey]
	if len(ids) == 0 {
		return nil
	}
	out := make([]ConnectionRecord, 0, len(ids))
	for id := range ids {
		out = append(out, r.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// Get returns the registration for a connection id.
func (r *Registry) Get(connectionID string) (ConnectionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[connectionID]
	return rec, ok
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) dropFromIndex(rec ConnectionRecord) {
	ids := r.byKey[rec.ListeningKey]
	delete(ids, rec.ConnectionID)
	if len(ids) == 0 {
		delete(r.byKey, rec.ListeningKey)
	}
}
