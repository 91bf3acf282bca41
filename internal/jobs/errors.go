package jobs

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/research-crew/internal/workflow"
)

var (
	// ErrDuplicateJob is returned when a job id is already registered
	ErrDuplicateJob = errors.New("job already exists")

	// ErrNotFound is returned when a job id is unknown
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status change would leave a terminal status
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// WorkflowExecutionError wraps any failure raised while configuring or executing a workflow
type WorkflowExecutionError struct {
	JobID string
	Kind  workflow.Kind
	Err   error
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow %s failed for job %s: %v", e.Kind, e.JobID, e.Err)
}

func (e *WorkflowExecutionError) Unwrap() error {
	return e.Err
}

// Description is the human-readable text stored as the job result.
func (e *WorkflowExecutionError) Description() string {
	return e.Err.Error()
}

// PersistenceError wraps a failed write to the durable store. The in-memory
// registry is never rolled back when one occurs.
type PersistenceError struct {
	JobID string
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
