package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sitewatch/sitewatch/internal/changelog"
	"github.com/sitewatch/sitewatch/internal/metrics"
)

// ErrGone marks a callback endpoint whose connection has vanished. It is an
// expected terminal condition; the registration stays in place and delivery
// counts as complete.
var ErrGone = errors.New("connection gone")

// Event is the payload pushed to every listener of a mutated key.
type Event struct {
	EventName string `json:"eventName"`
	Value     any    `json:"value"`
}

// Pusher delivers one event to one connection's callback endpoint.
// Implementations return ErrGone (possibly wrapped) when the connection no
// longer exists.
type Pusher interface {
	Push(ctx context.Context, rec ConnectionRecord, event Event) error
}

// Notifier fans store mutations out to every listener registered for the
// mutated key.
type Notifier struct {
	registry *Registry
	pusher   Pusher
	logger   *zap.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(registry *Registry, pusher Pusher, logger *zap.Logger) (*Notifier, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if pusher == nil {
		return nil, fmt.Errorf("pusher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{registry: registry, pusher: pusher, logger: logger}, nil
}

// Notify pushes the event to every listener of listeningKey. A gone
// connection is logged and treated as a completed delivery; its registration
// is kept. Any other push error is collected and returned after all
// listeners have been attempted, so one failing listener never blocks the
// rest.
func (n *Notifier) Notify(ctx context.Context, listeningKey string, event Event) error {
	listeners := n.registry.ListListeners(listeningKey)
	if len(listeners) == 0 {
		return nil
	}

	var errs []error
	for _, rec := range listeners {
		err := n.pusher.Push(ctx, rec, event)
		switch {
		case err == nil:
			metrics.ObserveDelivery("delivered")
		case errors.Is(err, ErrGone):
			metrics.ObserveDelivery("gone")
			n.logger.Info("listener gone",
				zap.String("connection_id", rec.ConnectionID),
				zap.String("listening_key", listeningKey),
			)
		default:
			metrics.ObserveDelivery("failed")
			n.logger.Warn("push failed",
				zap.String("connection_id", rec.ConnectionID),
				zap.String("listening_key", listeningKey),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("push to %s: %w", rec.ConnectionID, err))
		}
	}
	return errors.Join(errs...)
}

// Consume implements changelog.Consumer: each record is fanned out to the
// listeners of its partition key. Records whose delivery errored are
// returned for redelivery; gone connections do not fail a record.
func (n *Notifier) Consume(ctx context.Context, batch []changelog.Record) []changelog.Record {
	var failed []changelog.Record
	for _, rec := range batch {
		event := Event{EventName: string(rec.Op), Value: rec}
		if err := n.Notify(ctx, rec.PartitionKey, event); err != nil {
			failed = append(failed, rec)
		}
	}
	return failed
}
