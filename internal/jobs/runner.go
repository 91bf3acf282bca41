package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cuongbtq/research-crew/internal/workflow"
)

// Event messages written by the runner around every workflow.
const (
	EventTaskStarted  = "Task Started"
	EventTaskComplete = "Task Complete"
	EventCrewComplete = "Crew complete"
	EventErrorPrefix  = "An error occurred: "
)

const (
	defaultPersistTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// RunnerConfig holds runner dependencies. Store and Publisher are optional.
type RunnerConfig struct {
	Registry       *Registry
	Catalog        *workflow.Catalog
	Store          DurableStore
	Publisher      EventPublisher
	Logger         *slog.Logger
	PersistTimeout time.Duration
	PublishTimeout time.Duration
}

// Runner executes each submitted job on its own goroutine. There is no pool,
// no queue and no retry: one attempt per job, and a running workflow cannot
// be cancelled.
type Runner struct {
	registry       *Registry
	catalog        *workflow.Catalog
	store          DurableStore
	publisher      EventPublisher
	logger         *slog.Logger
	persistTimeout time.Duration
	publishTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]*Handle
	wg       sync.WaitGroup
}

// Handle ties a registry entry to the goroutine executing it.
type Handle struct {
	JobID     string
	Kind      workflow.Kind
	StartedAt time.Time
	done      chan struct{}
}

// Done is closed once the job reached a terminal status and persistence was attempted.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the execution finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewRunner creates a runner instance
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}

	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	return &Runner{
		registry:       cfg.Registry,
		catalog:        cfg.Catalog,
		store:          cfg.Store,
		publisher:      cfg.Publisher,
		logger:         logger,
		persistTimeout: persistTimeout,
		publishTimeout: publishTimeout,
		inflight:       make(map[string]*Handle),
	}
}

// Submit registers a PENDING job, makes it durable when its kind is persisted,
// and launches it. A durable write failure is logged and does not reject the submission.
func (r *Runner) Submit(ctx context.Context, jobID string, req workflow.Request) (*Handle, error) {
	rec, err := r.registry.Create(jobID, req.Kind)
	if err != nil {
		return nil, err
	}

	if r.persists(req.Kind) {
		if err := r.store.CreatePending(ctx, jobID, req.Kind); err != nil {
			r.logDivergence(r.logger, &PersistenceError{JobID: jobID, Op: "create_pending", Err: err})
		}
	}

	submitted := Notification{
		JobID:      jobID,
		Kind:       string(req.Kind),
		Status:     StatusPending,
		Message:    "Job submitted",
		OccurredAt: rec.CreatedAt,
	}
	return r.launch(jobID, req, submitted), nil
}

// launch starts the execution goroutine for an already registered job.
// The submitted notification is published from that goroutine so a slow
// broker never holds up the caller.
func (r *Runner) launch(jobID string, req workflow.Request, submitted Notification) *Handle {
	h := &Handle{
		JobID:     jobID,
		Kind:      req.Kind,
		StartedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.inflight[jobID] = h
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.inflight, jobID)
			r.mu.Unlock()
			close(h.done)
		}()

		r.publish(submitted)
		r.execute(jobID, req)
	}()

	return h
}

// InFlight returns the number of executing jobs.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Wait blocks until every launched job finished or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute drives one job through started -> workflow -> outcome -> finalize -> persist.
func (r *Runner) execute(jobID string, req workflow.Request) {
	ctx := context.Background()
	logger := r.logger.With(
		slog.String("job_id", jobID),
		slog.String("kind", req.Kind.String()),
	)
	start := time.Now()

	logger.Info("Crew for job is starting")

	if err := r.registry.SetStatus(jobID, StatusRunning); err != nil {
		logger.Error("Failed to mark job running", slog.String("error", err.Error()))
	}
	r.record(jobID, req.Kind, StatusRunning, EventTaskStarted)

	result, err := r.runWorkflow(ctx, jobID, req)

	status := StatusComplete
	if err != nil {
		description := err.Error()
		var execErr *WorkflowExecutionError
		if errors.As(err, &execErr) {
			description = execErr.Description()
		}

		logger.Error("Error in crew kickoff",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)

		r.record(jobID, req.Kind, StatusRunning, EventErrorPrefix+description)
		status = StatusError
		result = Raw(description)
	} else {
		logger.Info("Crew for job is complete",
			slog.String("result_kind", string(result.Kind())),
			slog.Duration("elapsed", time.Since(start)),
		)
		r.record(jobID, req.Kind, StatusRunning, EventTaskComplete)
	}

	// ERROR is sticky: the closing event is always written, COMPLETE only on success.
	evt, err := r.registry.Finalize(jobID, status, &result, EventCrewComplete)
	if err != nil {
		logger.Error("Failed to finalize job", slog.String("error", err.Error()))
	} else {
		r.publish(Notification{
			JobID:      jobID,
			Kind:       string(req.Kind),
			Status:     status,
			Message:    EventCrewComplete,
			OccurredAt: evt.Timestamp,
		})
	}

	r.persistOutcome(ctx, logger, jobID, req.Kind, status, result)
}

// runWorkflow resolves, configures and executes the workflow. Every failure,
// including a panic, comes back as a *WorkflowExecutionError.
func (r *Runner) runWorkflow(ctx context.Context, jobID string, req workflow.Request) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Workflow panicked",
				slog.String("job_id", jobID),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			res = Result{}
			err = &WorkflowExecutionError{JobID: jobID, Kind: req.Kind, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	wf, err := r.catalog.New(req.Kind, jobID, jobReporter{runner: r, kind: req.Kind})
	if err != nil {
		return Result{}, &WorkflowExecutionError{JobID: jobID, Kind: req.Kind, Err: err}
	}

	if err := wf.Configure(req); err != nil {
		return Result{}, &WorkflowExecutionError{JobID: jobID, Kind: req.Kind, Err: err}
	}

	output, err := wf.Execute(ctx)
	if err != nil {
		return Result{}, &WorkflowExecutionError{JobID: jobID, Kind: req.Kind, Err: err}
	}

	return ResultFromText(output), nil
}

// persistOutcome writes the terminal status and, on success, the result row.
// The two writes are independent; a failure of either is logged as divergence.
func (r *Runner) persistOutcome(ctx context.Context, logger *slog.Logger, jobID string, kind workflow.Kind, status Status, result Result) {
	if !r.persists(kind) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	if err := r.store.MarkTerminal(ctx, jobID, status); err != nil {
		r.logDivergence(logger, &PersistenceError{JobID: jobID, Op: "mark_terminal", Err: err})
	}

	if status != StatusComplete {
		return
	}

	if err := r.store.StoreResult(ctx, jobID, result); err != nil {
		r.logDivergence(logger, &PersistenceError{JobID: jobID, Op: "store_result", Err: err})
		return
	}

	logger.Info("Database updated for job", slog.String("status", string(status)))
}

func (r *Runner) persists(kind workflow.Kind) bool {
	return r.store != nil && r.catalog.Persisted(kind)
}

func (r *Runner) logDivergence(logger *slog.Logger, perr *PersistenceError) {
	logger.Error("Durable store write failed, in-memory state kept",
		slog.String("job_id", perr.JobID),
		slog.String("op", perr.Op),
		slog.Bool("divergence", true),
		slog.String("error", perr.Err.Error()),
	)
}

// record appends an event and fans it out. An unknown job is logged, never raised.
func (r *Runner) record(jobID string, kind workflow.Kind, status Status, message string) {
	evt, err := r.registry.AppendEvent(jobID, message)
	if err != nil {
		r.logger.Warn("Failed to append job event",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	r.publish(Notification{
		JobID:      jobID,
		Kind:       string(kind),
		Status:     status,
		Message:    message,
		OccurredAt: evt.Timestamp,
	})
}

func (r *Runner) publish(n Notification) {
	if r.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	defer cancel()

	if err := r.publisher.Publish(ctx, n); err != nil {
		r.logger.Warn("Failed to publish job notification",
			slog.String("job_id", n.JobID),
			slog.String("status", string(n.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// jobReporter is the progress sink handed to workflows.
type jobReporter struct {
	runner *Runner
	kind   workflow.Kind
}

func (j jobReporter) Report(jobID, message string) {
	j.runner.record(jobID, j.kind, StatusRunning, message)
}
