// Package audit consumes job lifecycle notifications from RabbitMQ and
// records them in the job_events table.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/research-crew/internal/jobs"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultConcurrency   = 4
	defaultPrefetchCount = 10
	defaultWriteTimeout  = 10 * time.Second
	defaultConsumerTag   = "audit-service"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the delivery channel.
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Consumer is the consuming side of the RabbitMQ client.
type Consumer interface {
	Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error)
}

// EventStore persists one notification.
type EventStore interface {
	InsertEvent(ctx context.Context, n jobs.Notification) error
}

// Config holds audit service configuration
type Config struct {
	Logger        *slog.Logger
	Consumer      Consumer
	Store         EventStore
	Concurrency   int
	PrefetchCount int
	WriteTimeout  time.Duration
	ConsumerTag   string
}

// Service drains the notification queue with a fixed pool of goroutines.
type Service struct {
	logger        *slog.Logger
	consumer      Consumer
	store         EventStore
	concurrency   int
	prefetchCount int
	writeTimeout  time.Duration
	consumerTag   string

	events chan *message
	wg     sync.WaitGroup
}

// message is a decoded notification paired with the delivery to settle.
type message struct {
	notification jobs.Notification
	delivery     amqp.Delivery
}

// NewService creates an audit service instance
func NewService(cfg *Config) *Service {
	s := &Service{
		logger:        cfg.Logger,
		consumer:      cfg.Consumer,
		store:         cfg.Store,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		writeTimeout:  cfg.WriteTimeout,
		consumerTag:   cfg.ConsumerTag,
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	if s.prefetchCount <= 0 {
		s.prefetchCount = defaultPrefetchCount
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	if s.consumerTag == "" {
		s.consumerTag = defaultConsumerTag
	}

	s.events = make(chan *message, s.concurrency)
	return s
}

// Start consumes until ctx is canceled or the broker closes the deliveries.
// Messages already handed to the pool are settled before Start returns.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting audit service",
		slog.Int("concurrency", s.concurrency),
		slog.Int("prefetch_count", s.prefetchCount),
		slog.Duration("write_timeout", s.writeTimeout),
	)

	deliveries, err := s.setupConsumer()
	if err != nil {
		return err
	}

	s.spawnWorkerPool()

	closed := s.dispatch(ctx, deliveries)

	close(s.events)
	s.wg.Wait()
	s.logger.Info("Audit service stopped")

	if closed {
		return ErrDeliveriesClosed
	}
	return nil
}
