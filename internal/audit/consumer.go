package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/notify"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up the RabbitMQ consumer with QoS and returns the delivery channel
func (s *Service) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := s.consumer.Consume(s.consumerTag, s.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	s.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", s.consumerTag),
		slog.Int("prefetch_count", s.prefetchCount),
	)

	return deliveries, nil
}

// dispatch hands valid deliveries to the pool. It reports true when the
// delivery channel was closed by the broker rather than by ctx.
func (s *Service) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	s.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Message dispatcher stopped - context canceled")
			return false

		case delivery, ok := <-deliveries:
			if !ok {
				s.logger.Warn("RabbitMQ delivery channel closed")
				return true
			}

			n, err := decodeMessage(delivery.Body)
			if err != nil {
				s.logger.Error("Dropping malformed notification",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages are never requeued.
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					s.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case s.events <- &message{notification: n, delivery: delivery}:
				s.logger.Debug("Notification dispatched to worker pool",
					slog.String("job_id", n.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				s.logger.Info("Message dispatcher stopped while dispatching")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					s.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return false
			}
		}
	}
}

// decodeMessage parses and validates a notification body.
func decodeMessage(body []byte) (jobs.Notification, error) {
	n, err := notify.Decode(body)
	if err != nil {
		return jobs.Notification{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if _, err := uuid.Parse(n.JobID); err != nil {
		return jobs.Notification{}, fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidMessage, n.JobID)
	}

	if !n.Status.Valid() {
		return jobs.Notification{}, fmt.Errorf("%w: unknown status %q", ErrInvalidMessage, n.Status)
	}

	if n.OccurredAt.IsZero() {
		return jobs.Notification{}, fmt.Errorf("%w: missing occurred_at", ErrInvalidMessage)
	}

	return n, nil
}
