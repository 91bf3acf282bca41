package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/storage"
	"github.com/cuongbtq/research-crew/internal/workflow"
	"github.com/google/uuid"
)

// Submitter starts a job in the background and returns immediately.
type Submitter interface {
	Submit(ctx context.Context, jobID string, req workflow.Request) (*jobs.Handle, error)
}

// JobReader is the durable side of job queries.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*storage.JobRow, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]storage.JobRow, error)
	ListEvents(ctx context.Context, jobID string) ([]storage.EventRow, error)
}

// ResultReader returns persisted results, usually through the cache.
type ResultReader interface {
	GetResult(ctx context.Context, jobID string) (*storage.ResultRow, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers. Jobs, Results and
// Database may be nil when no database is configured.
type Dependencies struct {
	Logger   *slog.Logger
	Registry *jobs.Registry
	Runner   Submitter
	Jobs     JobReader
	Results  ResultReader
	Database HealthChecker
	Prompts  *workflow.Prompts
	NewJobID func() string
}

// JobHandler handles job submission and query requests
type JobHandler struct {
	logger   *slog.Logger
	registry *jobs.Registry
	runner   Submitter
	jobs     JobReader
	results  ResultReader
	newJobID func() string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	newJobID := deps.NewJobID
	if newJobID == nil {
		newJobID = uuid.NewString
	}

	return &JobHandler{
		logger:   deps.Logger,
		registry: deps.Registry,
		runner:   deps.Runner,
		jobs:     deps.Jobs,
		results:  deps.Results,
		newJobID: newJobID,
	}
}

// ConfigHandler serves the crew personas and task templates
type ConfigHandler struct {
	logger  *slog.Logger
	prompts *workflow.Prompts
}

// NewConfigHandler creates a new ConfigHandler instance
func NewConfigHandler(deps *Dependencies) *ConfigHandler {
	return &ConfigHandler{
		logger:  deps.Logger,
		prompts: deps.Prompts,
	}
}
