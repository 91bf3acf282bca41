package audit

import (
	"errors"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns the fixed set of worker goroutines
func (s *Service) spawnWorkerPool() {
	for i := 0; i < s.concurrency; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	s.logger.Info("Worker pool spawned",
		slog.Int("worker_count", s.concurrency),
	)
}

// workerLoop settles messages until the events channel is closed. Workers do
// not watch ctx so every dispatched delivery is acked or nacked.
func (s *Service) workerLoop(workerNum int) {
	defer s.wg.Done()

	workerName := fmt.Sprintf("%s-%d", s.consumerTag, workerNum)

	for msg := range s.events {
		n := msg.notification

		err := s.processMessage(msg)
		if err != nil {
			requeue := shouldRequeue(err)

			s.logger.Error("Failed to record job event",
				slog.String("worker_name", workerName),
				slog.String("job_id", n.JobID),
				slog.Bool("requeue", requeue),
				slog.String("error", err.Error()),
			)

			if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
				s.logger.Error("Failed to NACK message",
					slog.String("worker_name", workerName),
					slog.String("job_id", n.JobID),
					slog.String("error", nackErr.Error()),
				)
			}
			continue
		}

		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			s.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", n.JobID),
				slog.String("error", ackErr.Error()),
			)
		}
	}

	s.logger.Debug("Worker goroutine stopped", slog.String("worker_name", workerName))
}

// shouldRequeue requeues only transient failures
func shouldRequeue(err error) bool {
	if errors.Is(err, ErrInvalidMessage) {
		return false
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
