package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/research-crew/internal/api/dto"
	"github.com/cuongbtq/research-crew/internal/api/handler"
	"github.com/cuongbtq/research-crew/internal/api/router"
	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/storage"
	"github.com/cuongbtq/research-crew/internal/workflow"
	"github.com/cuongbtq/research-crew/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedWorkflow reports one progress message and returns output.
type scriptedWorkflow struct {
	jobID    string
	reporter workflow.Reporter
	output   string
}

func (w *scriptedWorkflow) Configure(workflow.Request) error { return nil }

func (w *scriptedWorkflow) Execute(context.Context) (string, error) {
	w.reporter.Report(w.jobID, "collected")
	return w.output, nil
}

// memoryStore serves durable rows for jobs the registry does not know.
type memoryStore struct {
	jobs    map[string]storage.JobRow
	events  map[string][]storage.EventRow
	results map[string]storage.ResultRow
	list    []storage.JobRow
	filter  storage.JobFilter
	down    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:    map[string]storage.JobRow{},
		events:  map[string][]storage.EventRow{},
		results: map[string]storage.ResultRow{},
	}
}

func (m *memoryStore) GetJob(_ context.Context, jobID string) (*storage.JobRow, error) {
	row, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return &row, nil
}

func (m *memoryStore) ListJobs(_ context.Context, filter storage.JobFilter) ([]storage.JobRow, error) {
	m.filter = filter
	return m.list, nil
}

func (m *memoryStore) ListEvents(_ context.Context, jobID string) ([]storage.EventRow, error) {
	return m.events[jobID], nil
}

func (m *memoryStore) HealthCheck(context.Context) error {
	return m.down
}

func (m *memoryStore) GetResult(_ context.Context, jobID string) (*storage.ResultRow, error) {
	row, ok := m.results[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrNotFound, jobID)
	}
	return &row, nil
}

type fixture struct {
	engine   *gin.Engine
	registry *jobs.Registry
	runner   *jobs.Runner
	store    *memoryStore
	prompts  *workflow.Prompts
	ids      []string
}

func newFixture(t *testing.T, output string) *fixture {
	t.Helper()

	catalog := workflow.NewCatalog()
	factory := func(jobID string, reporter workflow.Reporter) workflow.Workflow {
		return &scriptedWorkflow{jobID: jobID, reporter: reporter, output: output}
	}
	for _, kind := range []workflow.Kind{workflow.KindCompany, workflow.KindIndustry, workflow.KindMacroeconomic, workflow.KindTrip} {
		catalog.Register(kind, factory)
	}

	f := &fixture{
		registry: jobs.NewRegistry(),
		store:    newMemoryStore(),
		prompts:  workflow.NewPrompts(),
	}
	f.runner = jobs.NewRunner(jobs.RunnerConfig{
		Registry: f.registry,
		Catalog:  catalog,
		Logger:   logger.Discard(),
	})

	seq := 0
	f.engine = router.SetupRouter(&handler.Dependencies{
		Logger:   logger.Discard(),
		Registry: f.registry,
		Runner:   f.runner,
		Jobs:     f.store,
		Results:  f.store,
		Database: f.store,
		Prompts:  f.prompts,
		NewJobID: func() string {
			seq++
			id := fmt.Sprintf("00000000-0000-4000-8000-%012d", seq)
			f.ids = append(f.ids, id)
			return id
		},
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.runner.Wait(ctx)
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Wait(ctx))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestSubmitAnalyse_RunsToCompletion(t *testing.T) {
	f := newFixture(t, `{"name":"Acme","score":5}`)

	w := f.do(t, http.MethodPost, "/api/crew-analyse", `{"inputData":["company","Acme"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	submitted := decode[dto.SubmitResponse](t, w)
	require.Equal(t, f.ids[0], submitted.JobID)

	f.wait(t)

	w = f.do(t, http.MethodGet, "/api/crew/"+submitted.JobID, "")
	require.Equal(t, http.StatusOK, w.Code)

	status := decode[dto.JobStatusResponse](t, w)
	assert.Equal(t, "COMPLETE", status.Status)
	assert.Equal(t, map[string]any{"name": "Acme", "score": float64(5)}, status.Result)

	messages := make([]string, len(status.Events))
	for i, e := range status.Events {
		messages[i] = e.Data
		_, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{jobs.EventTaskStarted, "collected", jobs.EventTaskComplete, jobs.EventCrewComplete}, messages)
}

func TestGetStatus_Query(t *testing.T) {
	f := newFixture(t, `{"name":"Acme","scores":[1,2,3]}`)

	w := f.do(t, http.MethodPost, "/api/crew-analyse", `{"inputData":"industry retail"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	jobID := decode[dto.SubmitResponse](t, w).JobID
	f.wait(t)

	w = f.do(t, http.MethodGet, "/api/crew/"+jobID+"?query=name", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", decode[dto.JobStatusResponse](t, w).Result)

	w = f.do(t, http.MethodGet, "/api/crew/"+jobID+"?query=scores%5B-1%5D", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode[dto.JobStatusResponse](t, w).Result)

	w = f.do(t, http.MethodGet, "/api/crew/"+jobID+"?query=%5B", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitAnalyse_UnknownKeyword(t *testing.T) {
	f := newFixture(t, "unused")

	w := f.do(t, http.MethodPost, "/api/crew-analyse", `{"inputData":["weather","tomorrow"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	jobID := decode[dto.SubmitResponse](t, w).JobID
	f.wait(t)

	w = f.do(t, http.MethodGet, "/api/crew/"+jobID, "")
	require.Equal(t, http.StatusOK, w.Code)

	status := decode[dto.JobStatusResponse](t, w)
	assert.Equal(t, "ERROR", status.Status)
	assert.Equal(t, "no workflow selected: unknown", status.Result)
	for _, e := range status.Events {
		assert.NotEqual(t, "collected", e.Data)
	}
}

func TestSubmit_MalformedIsRejectedBeforeCreation(t *testing.T) {
	f := newFixture(t, "unused")

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "empty body", path: "/api/crew-analyse", body: ""},
		{name: "missing inputData", path: "/api/crew-analyse", body: `{"companies":["Acme"]}`},
		{name: "inputData object", path: "/api/crew-analyse", body: `{"inputData":{"a":1}}`},
		{name: "trip missing hobby", path: "/api/crew-trip", body: `{"travel_from":"Hanoi","travel_to":"Hue","date":"2024-06-01"}`},
		{name: "trip blank field", path: "/api/crew-trip", body: `{"travel_from":"Hanoi","travel_to":"  ","date":"2024-06-01","hobby":"food"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	assert.Equal(t, 0, f.registry.Len())
}

func TestSubmitTrip(t *testing.T) {
	f := newFixture(t, "Day 1: beach")

	w := f.do(t, http.MethodPost, "/api/crew-trip",
		`{"travel_from":["Ho","Chi","Minh"],"travel_to":"Da Nang","date":["2024-06-01"],"hobby":["food",2]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	jobID := decode[dto.SubmitResponse](t, w).JobID
	f.wait(t)

	rec, err := f.registry.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, workflow.KindTrip, rec.Kind)
	assert.Equal(t, jobs.StatusComplete, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, jobs.ResultRaw, rec.Result.Kind())
	assert.Equal(t, "Day 1: beach", rec.Result.Text())
}

func TestGetStatus_NotFound(t *testing.T) {
	f := newFixture(t, "unused")

	w := f.do(t, http.MethodGet, "/api/crew/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStatus_FallsBackToDurableStore(t *testing.T) {
	f := newFixture(t, "unused")

	jobID := "11111111-1111-4111-8111-111111111111"
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.store.jobs[jobID] = storage.JobRow{JobID: jobID, Kind: "company", Status: "COMPLETE", CreatedAt: created, UpdatedAt: created}
	f.store.events[jobID] = []storage.EventRow{
		{JobID: jobID, Status: "RUNNING", Message: jobs.EventTaskStarted, OccurredAt: created},
		{JobID: jobID, Status: "COMPLETE", Message: jobs.EventCrewComplete, OccurredAt: created.Add(time.Minute)},
	}
	f.store.results[jobID] = storage.ResultRow{JobID: jobID, ResultKind: "structured", Result: `{"ok":true}`, CreatedAt: created, UpdatedAt: created}

	w := f.do(t, http.MethodGet, "/api/crew/"+jobID, "")
	require.Equal(t, http.StatusOK, w.Code)

	status := decode[dto.JobStatusResponse](t, w)
	assert.Equal(t, "COMPLETE", status.Status)
	assert.Equal(t, map[string]any{"ok": true}, status.Result)
	require.Len(t, status.Events, 2)
	assert.Equal(t, jobs.EventTaskStarted, status.Events[0].Data)
	assert.Equal(t, "2024-05-01T09:00:00Z", status.Events[0].Timestamp)
}

func TestGetJobResult(t *testing.T) {
	f := newFixture(t, "unused")

	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.store.results["job-1"] = storage.ResultRow{JobID: "job-1", ResultKind: "raw", Result: "summary", CreatedAt: created, UpdatedAt: created}

	w := f.do(t, http.MethodGet, "/api/job-results/job-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[dto.JobResultResponse](t, w)
	assert.Equal(t, "summary", got.Result)
	assert.Equal(t, "raw", got.ResultKind)
	assert.Equal(t, "2024-05-01T09:00:00Z", got.CreatedAt)

	w = f.do(t, http.MethodGet, "/api/job-results/job-2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, "unused")

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f.store.list = append(f.store.list, storage.JobRow{
			JobID:     fmt.Sprintf("job-%d", i),
			Kind:      "company",
			Status:    "COMPLETE",
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			UpdatedAt: base,
		})
	}

	w := f.do(t, http.MethodGet, "/api/jobs?page_size=2&status=COMPLETE", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.ListJobsResponse](t, w)
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "job-0", resp.Jobs[0].JobID)
	require.NotEmpty(t, resp.NextCursor)
	assert.Equal(t, 2, f.store.filter.PageSize)
	assert.Equal(t, "COMPLETE", f.store.filter.Status)

	cursor, err := handler.DecodeJobCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "job-1", cursor.JobID)
	assert.True(t, cursor.CreatedAt.Equal(base.Add(-time.Minute)))

	w = f.do(t, http.MethodGet, "/api/jobs?cursor="+resp.NextCursor, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.store.filter.Cursor)
	assert.Equal(t, "job-1", f.store.filter.Cursor.JobID)
	assert.Equal(t, 20, f.store.filter.PageSize)

	w = f.do(t, http.MethodGet, "/api/jobs?cursor=%21%21", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/jobs?status=DONE", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigEndpoints(t *testing.T) {
	f := newFixture(t, "unused")

	w := f.do(t, http.MethodGet, "/api/config/research-manager", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.prompts.Manager(), decode[workflow.Persona](t, w))

	w = f.do(t, http.MethodPut, "/api/config/research-agent", `{"role":"Field Researcher"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Field Researcher", f.prompts.Agent().Role)
	assert.NotEmpty(t, f.prompts.Agent().Goal)

	w = f.do(t, http.MethodPut, "/api/update-research-manager", `{"goal":"Write short reports"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Write short reports", f.prompts.Manager().Goal)

	w = f.do(t, http.MethodPut, "/api/config/research-manager", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/config/company-analyse", `{"searchTask":"Find news about {{.Subject}}"}`)
	require.Equal(t, http.StatusOK, w.Code)
	tasks, ok := f.prompts.Tasks(workflow.KindCompany)
	require.True(t, ok)
	assert.Equal(t, "Find news about {{.Subject}}", tasks.SearchTask)

	w = f.do(t, http.MethodGet, "/api/config/company-analyse", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tasks, decode[workflow.TaskTemplates](t, w))

	w = f.do(t, http.MethodPut, "/api/update-macroeconomy-analyse", `{"analyseTask":"{{.Missing}}"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "invalid task template"))
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t, "unused")

	w := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestHealth_CountsJobsByStatus(t *testing.T) {
	f := newFixture(t, "done")

	w := f.do(t, http.MethodPost, "/api/crew-analyse", `{"inputData":"company Acme"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	w = f.do(t, http.MethodPost, "/api/crew-analyse", `{"inputData":"weather today"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	f.wait(t)

	w = f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, float64(2), body["jobs"])
	assert.Equal(t, map[string]any{
		"PENDING":  float64(0),
		"RUNNING":  float64(0),
		"COMPLETE": float64(1),
		"ERROR":    float64(1),
	}, body["by_status"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	f := newFixture(t, "unused")
	f.store.down = errors.New("connection refused")

	w := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "unreachable", body["database"])
}
