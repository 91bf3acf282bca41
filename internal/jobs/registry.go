// Package jobs tracks asynchronous research jobs: the in-memory registry of
// job records, the runner that drives a workflow to a terminal status, and the
// bridges to the durable store and the lifecycle event publisher.
package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/research-crew/internal/workflow"
)

// Event is one immutable entry of a job's progress log.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"data"`
}

// Record is the tracked state of a single job.
type Record struct {
	JobID     string
	Kind      workflow.Kind
	Status    Status
	Result    *Result
	Events    []Event
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Record) snapshot() Record {
	out := *r
	out.Events = make([]Event, len(r.Events))
	copy(out.Events, r.Events)
	if r.Result != nil {
		res := *r.Result
		out.Result = &res
	}
	return out
}

// Registry holds every job record known to this process. All operations take
// a single mutex for their full duration, so readers observe each append or
// update either entirely or not at all.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Record
	now  func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Record),
		now:  time.Now,
	}
}

// Create inserts a PENDING record. An existing record is never overwritten.
func (r *Registry) Create(jobID string, kind workflow.Kind) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[jobID]; exists {
		return Record{}, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
	}

	now := r.now().UTC()
	rec := &Record{
		JobID:     jobID,
		Kind:      kind,
		Status:    StatusPending,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[jobID] = rec

	return rec.snapshot(), nil
}

// Get returns a copy of the record.
func (r *Registry) Get(jobID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[jobID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return rec.snapshot(), nil
}

// AppendEvent stamps message with the current time and appends it.
func (r *Registry) AppendEvent(jobID, message string) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[jobID]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	evt := Event{Timestamp: r.now().UTC(), Message: message}
	rec.Events = append(rec.Events, evt)
	rec.UpdatedAt = evt.Timestamp
	return evt, nil
}

// SetStatus moves the record to status without touching its result.
func (r *Registry) SetStatus(jobID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.transition(jobID, status)
	if err != nil {
		return err
	}
	rec.UpdatedAt = r.now().UTC()
	return nil
}

// Update replaces status and result together. Rewriting the result of a
// terminal record is allowed only while keeping the same status.
func (r *Registry) Update(jobID string, status Status, result *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.transition(jobID, status)
	if err != nil {
		return err
	}
	rec.Result = cloneResult(result)
	rec.UpdatedAt = r.now().UTC()
	return nil
}

// Finalize appends a closing event and sets the terminal status and result in
// one step, so a reader that sees the terminal status also sees the event.
func (r *Registry) Finalize(jobID string, status Status, result *Result, message string) (Event, error) {
	if !status.Terminal() {
		return Event{}, fmt.Errorf("%w: finalize with non-terminal status %s", ErrInvalidTransition, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.transition(jobID, status)
	if err != nil {
		return Event{}, err
	}

	evt := Event{Timestamp: r.now().UTC(), Message: message}
	rec.Events = append(rec.Events, evt)
	rec.Result = cloneResult(result)
	rec.UpdatedAt = evt.Timestamp
	return evt, nil
}

// transition validates a status change and applies it. Callers hold r.mu.
func (r *Registry) transition(jobID string, status Status) (*Record, error) {
	rec, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if !CanTransition(rec.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, status)
	}
	rec.Status = status
	return rec, nil
}

// List returns copies of all records, oldest first.
func (r *Registry) List() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.jobs))
	for _, rec := range r.jobs {
		out = append(out, rec.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func cloneResult(result *Result) *Result {
	if result == nil {
		return nil
	}
	res := *result
	return &res
}
