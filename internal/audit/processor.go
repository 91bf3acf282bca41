package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/research-crew/internal/storage"
)

// processMessage writes one notification to the event store. Writes run on
// their own context so a shutdown does not abort a delivery mid-insert.
func (s *Service) processMessage(msg *message) error {
	n := msg.notification

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.store.InsertEvent(ctx, n); err != nil {
		if storage.IsPermanent(err) {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return NewRetryableError(fmt.Errorf("insert event: %w", err))
	}

	s.logger.Debug("Job event recorded",
		slog.String("job_id", n.JobID),
		slog.String("status", string(n.Status)),
		slog.String("message", n.Message),
	)
	return nil
}
