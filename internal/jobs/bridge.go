package jobs

import (
	"context"
	"time"

	"github.com/cuongbtq/research-crew/internal/workflow"
)

// DurableStore mirrors a subset of job state outside the process. Each call
// commits on its own; there is no transaction spanning the registry and the store.
type DurableStore interface {
	CreatePending(ctx context.Context, jobID string, kind workflow.Kind) error
	MarkTerminal(ctx context.Context, jobID string, status Status) error
	StoreResult(ctx context.Context, jobID string, result Result) error
}

// Notification is a lifecycle event fanned out to external subscribers.
type Notification struct {
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers notifications on a best-effort basis.
type EventPublisher interface {
	Publish(ctx context.Context, n Notification) error
}
