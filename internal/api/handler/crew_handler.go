package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/research-crew/internal/api/dto"
	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/storage"
	"github.com/cuongbtq/research-crew/internal/workflow"
	"github.com/gin-gonic/gin"
	jmespath "github.com/jmespath-community/go-jmespath"
)

// SubmitAnalyse handles POST /api/crew-analyse
// The leading keyword of inputData picks the crew; an unknown keyword still
// creates a job that ends in ERROR.
func (h *JobHandler) SubmitAnalyse(c *gin.Context) {
	var req dto.AnalyseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid input data provided.",
		})
		return
	}

	if req.InputData == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid input data provided.",
		})
		return
	}

	h.submit(c, workflow.AnalysisRequest(req.InputData.Join()))
}

// SubmitTrip handles POST /api/crew-trip
func (h *JobHandler) SubmitTrip(c *gin.Context) {
	var req dto.TripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid input data provided.",
		})
		return
	}

	params := workflow.TripParams{
		From:  req.TravelFrom.Join(),
		To:    req.TravelTo.Join(),
		Date:  req.Date.Join(),
		Hobby: req.Hobby.Join(),
	}
	if err := params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.submit(c, workflow.TripRequest(params))
}

func (h *JobHandler) submit(c *gin.Context, req workflow.Request) {
	jobID := h.newJobID()

	if _, err := h.runner.Submit(c.Request.Context(), jobID, req); err != nil {
		h.logger.Error("Failed to submit job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrDuplicateJob) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error": "Failed to submit job",
		})
		return
	}

	h.logger.Info("Job submitted",
		slog.String("job_id", jobID),
		slog.String("kind", req.Kind.String()),
	)

	c.JSON(http.StatusAccepted, dto.SubmitResponse{JobID: jobID})
}

// GetStatus handles GET /api/crew/:job_id
// Live jobs are served from the registry. Jobs from an earlier process are
// rebuilt from the durable store and the audit trail.
func (h *JobHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	query := c.Query("query")
	if query != "" {
		if _, err := jmespath.Compile(query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid query expression",
			})
			return
		}
	}

	resp, err := h.lookupStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	if query != "" {
		projected, err := jmespath.Search(query, resp.Result)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Failed to evaluate query expression",
			})
			return
		}
		resp.Result = projected
	}

	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) lookupStatus(ctx context.Context, jobID string) (*dto.JobStatusResponse, error) {
	rec, err := h.registry.Get(jobID)
	if err == nil {
		return statusFromRecord(rec)
	}
	if !errors.Is(err, jobs.ErrNotFound) || h.jobs == nil {
		return nil, err
	}

	row, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &dto.JobStatusResponse{
		JobID:  row.JobID,
		Status: row.Status,
		Events: []dto.EventDTO{},
	}

	events, err := h.jobs.ListEvents(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventDTO(e.OccurredAt, e.Message))
	}

	if jobs.Status(row.Status) != jobs.StatusComplete || h.results == nil {
		return resp, nil
	}

	result, err := h.results.GetResult(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return resp, nil
		}
		return nil, err
	}

	value, err := decodeResultRow(result)
	if err != nil {
		return nil, err
	}
	resp.Result = value
	return resp, nil
}

func statusFromRecord(rec jobs.Record) (*dto.JobStatusResponse, error) {
	resp := &dto.JobStatusResponse{
		JobID:  rec.JobID,
		Status: string(rec.Status),
		Events: make([]dto.EventDTO, 0, len(rec.Events)),
	}

	for _, e := range rec.Events {
		resp.Events = append(resp.Events, eventDTO(e.Timestamp, e.Message))
	}

	if rec.Result != nil {
		value, err := rec.Result.Value()
		if err != nil {
			return nil, err
		}
		resp.Result = value
	}
	return resp, nil
}

func decodeResultRow(row *storage.ResultRow) (any, error) {
	result, err := row.Decode()
	if err != nil {
		return nil, err
	}
	return result.Value()
}

func eventDTO(ts time.Time, message string) dto.EventDTO {
	return dto.EventDTO{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Data:      message,
	}
}
