package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/testutil"
	"github.com/cuongbtq/research-crew/internal/workflow"
)

func TestBuildListQuery(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		query, args := buildListQuery(JobFilter{PageSize: 20})
		assert.Contains(t, query, "ORDER BY created_at DESC, job_id DESC LIMIT $1")
		assert.Equal(t, []interface{}{21}, args)
	})

	t.Run("status and cursor", func(t *testing.T) {
		ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		query, args := buildListQuery(JobFilter{
			Status:   "COMPLETE",
			PageSize: 10,
			Cursor:   &JobCursor{CreatedAt: ts, JobID: "abc"},
		})
		assert.Contains(t, query, "AND status = $1")
		assert.Contains(t, query, "AND (created_at, job_id) < ($2, $3)")
		assert.Contains(t, query, "LIMIT $4")
		assert.Equal(t, []interface{}{"COMPLETE", ts, "abc", 11}, args)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(fmt.Errorf("plain")))
}

func TestResultRow_Decode(t *testing.T) {
	res, err := ResultRow{ResultKind: "structured", Result: `{"a":1}`}.Decode()
	require.NoError(t, err)
	assert.Equal(t, jobs.ResultStructured, res.Kind())

	res, err = ResultRow{ResultKind: "raw", Result: "crew failed"}.Decode()
	require.NoError(t, err)
	assert.Equal(t, "crew failed", res.Text())
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage(testutil.SetupTestDB(t))
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestStorage_JobLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePending(ctx, "job-1", workflow.KindCompany))

	err := s.CreatePending(ctx, "job-1", workflow.KindCompany)
	assert.ErrorIs(t, err, jobs.ErrDuplicateJob)

	job, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", job.Status)
	assert.Equal(t, "company", job.Kind)

	require.NoError(t, s.MarkTerminal(ctx, "job-1", jobs.StatusComplete))
	require.NoError(t, s.MarkTerminal(ctx, "job-1", jobs.StatusComplete))

	job, err = s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", job.Status)

	require.NoError(t, s.StoreResult(ctx, "job-1", jobs.Raw("draft")))
	require.NoError(t, s.StoreResult(ctx, "job-1", jobs.ResultFromText(`{"rating":"buy"}`)))

	row, err := s.GetResult(ctx, "job-1")
	require.NoError(t, err)
	res, err := row.Decode()
	require.NoError(t, err)
	assert.Equal(t, jobs.ResultStructured, res.Kind())
	assert.JSONEq(t, `{"rating":"buy"}`, res.Text())
}

func TestStorage_NotFound(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	_, err = s.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	assert.ErrorIs(t, s.MarkTerminal(ctx, "missing", jobs.StatusError), jobs.ErrNotFound)
}

func TestStorage_ListJobsPaginates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return ts }
		require.NoError(t, s.CreatePending(ctx, fmt.Sprintf("job-%d", i), workflow.KindIndustry))
	}
	require.NoError(t, s.MarkTerminal(ctx, "job-3", jobs.StatusError))

	page, err := s.ListJobs(ctx, JobFilter{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "job-4", page[0].JobID)
	assert.Equal(t, "job-3", page[1].JobID)

	next, err := s.ListJobs(ctx, JobFilter{
		PageSize: 2,
		Cursor:   &JobCursor{CreatedAt: page[1].CreatedAt, JobID: page[1].JobID},
	})
	require.NoError(t, err)
	require.Len(t, next, 3)
	assert.Equal(t, "job-2", next[0].JobID)

	failed, err := s.ListJobs(ctx, JobFilter{Status: "ERROR", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "job-3", failed[0].JobID)
}

func TestStorage_Events(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, msg := range []string{"Task Started", "Task Complete", "Crew complete"} {
		require.NoError(t, s.InsertEvent(ctx, jobs.Notification{
			JobID:      "job-1",
			Kind:       "company",
			Status:     jobs.StatusRunning,
			Message:    msg,
			OccurredAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := s.ListEvents(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Task Started", events[0].Message)
	assert.Equal(t, "Crew complete", events[2].Message)

	none, err := s.ListEvents(ctx, "job-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&pq.Error{Code: "22001"}))
	assert.True(t, IsPermanent(fmt.Errorf("insert: %w", &pq.Error{Code: "23502"})))
	assert.False(t, IsPermanent(&pq.Error{Code: "08006"}))
	assert.False(t, IsPermanent(&pq.Error{Code: "57P01"}))
	assert.False(t, IsPermanent(context.DeadlineExceeded))
}
