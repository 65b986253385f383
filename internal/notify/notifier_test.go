package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/changelog"
)

// scriptedPusher returns a per-connection canned result and records every
// delivery attempt.
type scriptedPusher struct {
	mu      sync.Mutex
	results map[string]error
	pushed  []string
}

func (p *scriptedPusher) Push(_ context.Context, rec ConnectionRecord, _ Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, rec.ConnectionID)
	return p.results[rec.ConnectionID]
}

func newNotifier(t *testing.T, r *Registry, p Pusher) *Notifier {
	t.Helper()
	n, err := NewNotifier(r, p, zap.NewNop())
	require.NoError(t, err)
	return n
}

func TestNotifyToleratesGoneConnection(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry("")
	require.NoError(t, err)
	require.NoError(t, r.Register(ConnectionRecord{ConnectionID: "alive", ListeningKey: "URL#example.com"}))
	require.NoError(t, r.Register(ConnectionRecord{ConnectionID: "ghost", ListeningKey: "URL#example.com"}))

	pusher := &scriptedPusher{results: map[string]error{
		"ghost": fmt.Errorf("socket: %w", ErrGone),
	}}
	n := newNotifier(t, r, pusher)

	err = n.Notify(context.Background(), "URL#example.com", Event{EventName: "INSERT"})
	require.NoError(t, err)

	// Both listeners were attempted and the gone one is still registered.
	require.ElementsMatch(t, []string{"alive", "ghost"}, pusher.pushed)
	_, ok := r.Get("ghost")
	require.True(t, ok)
}

func TestNotifyOneFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry("")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(ConnectionRecord{ConnectionID: id, ListeningKey: "URL#example.com"}))
	}

	pusher := &scriptedPusher{results: map[string]error{
		"b": fmt.Errorf("connection reset"),
	}}
	n := newNotifier(t, r, pusher)

	err = n.Notify(context.Background(), "URL#example.com", Event{EventName: "MODIFY"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "push to b")

	require.ElementsMatch(t, []string{"a", "b", "c"}, pusher.pushed)
	require.Equal(t, 3, r.Len())
}

func TestNotifyNoListenersIsANoOp(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry("")
	require.NoError(t, err)
	pusher := &scriptedPusher{}
	n := newNotifier(t, r, pusher)

	require.NoError(t, n.Notify(context.Background(), "URL#nobody.com", Event{EventName: "INSERT"}))
	require.Empty(t, pusher.pushed)
}

func TestConsumeReportsOnlyErroredRecords(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry("")
	require.NoError(t, err)
	require.NoError(t, r.Register(ConnectionRecord{ConnectionID: "ok-listener", ListeningKey: "URL#a.com"}))
	require.NoError(t, r.Register(ConnectionRecord{ConnectionID: "bad-listener", ListeningKey: "URL#b.com"}))

	pusher := &scriptedPusher{results: map[string]error{
		"bad-listener": fmt.Errorf("connection reset"),
	}}
	n := newNotifier(t, r, pusher)

	now := time.Now().UTC()
	batch := []changelog.Record{
		{Sequence: 1, Op: changelog.OpInsert, PartitionKey: "URL#a.com", SortKey: "PATH#/x", At: now},
		{Sequence: 1, Op: changelog.OpInsert, PartitionKey: "URL#b.com", SortKey: "PATH#/y", At: now},
		{Sequence: 1, Op: changelog.OpInsert, PartitionKey: "URL#c.com", SortKey: "PATH#/z", At: now},
	}
	failed := n.Consume(context.Background(), batch)

	require.Len(t, failed, 1)
	require.Equal(t, "URL#b.com", failed[0].PartitionKey)
}
