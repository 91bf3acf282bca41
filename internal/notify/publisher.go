// Package notify fans job lifecycle events out over RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/research-crew/internal/jobs"
)

const contentType = "application/json"

// Broker is the publishing side of the RabbitMQ client.
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Publisher implements jobs.EventPublisher.
type Publisher struct {
	broker Broker
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

// Publish encodes n as JSON and hands it to the broker.
func (p *Publisher) Publish(ctx context.Context, n jobs.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, body, contentType); err != nil {
		return fmt.Errorf("failed to publish notification for job %s: %w", n.JobID, err)
	}
	return nil
}

// Decode parses a message body produced by Publish.
func Decode(body []byte) (jobs.Notification, error) {
	var n jobs.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return jobs.Notification{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	return n, nil
}
