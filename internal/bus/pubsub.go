package bus

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubPublisher implements Publisher on Google Cloud Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubPublisher creates a Pub/Sub client and verifies the topic exists.
// It authenticates using Application Default Credentials.
func NewPubSubPublisher(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSubPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after missing topic", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	return &PubSubPublisher{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// Publish sends every URL as one message and waits for the server acks. URLs
// whose message the server refused come back as rejected; the call as a whole
// only errors when the batch could not be submitted at all.
func (p *PubSubPublisher) Publish(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	results := make([]*pubsub.PublishResult, len(urls))
	for i, url := range urls {
		results[i] = p.topic.Publish(ctx, &pubsub.Message{Data: []byte(url)})
	}

	var rejected []string
	for i, result := range results {
		if _, err := result.Get(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("publish batch: %w", ctx.Err())
			}
			p.logger.Warn("pubsub rejected url", zap.String("url", urls[i]), zap.Error(err))
			rejected = append(rejected, urls[i])
		}
	}
	return rejected, nil
}

// Close stops the topic's publish goroutines and closes the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
