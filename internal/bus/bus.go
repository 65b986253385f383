// Package bus defines the interface for the outbound event bus that carries
// discovered-URL domain events downstream. The abstraction keeps the pipeline
// independent of a specific broker (GCP Pub/Sub, RabbitMQ, Kafka).
package bus

import "context"

// Publisher sends a batch of discovered URLs downstream in one call.
// Rejected holds the URLs the bus refused; a non-nil error means the publish
// call itself failed and nothing in the batch can be assumed delivered.
type Publisher interface {
	Publish(ctx context.Context, urls []string) (rejected []string, err error)

	// Close cleans up client connections and resources.
	Close() error
}

// NoOpPublisher accepts every batch without delivering it. Useful for tests
// and for running the pipeline without a real broker.
type NoOpPublisher struct{}

// Publish for NoOpPublisher accepts everything.
func (n *NoOpPublisher) Publish(_ context.Context, _ []string) ([]string, error) {
	return nil, nil
}

// Close for NoOpPublisher does nothing.
func (n *NoOpPublisher) Close() error { return nil }
