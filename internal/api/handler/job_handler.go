package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/research-crew/internal/api/dto"
	"github.com/cuongbtq/research-crew/internal/jobs"
	"github.com/cuongbtq/research-crew/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetJobResult handles GET /api/job-results/:job_id
// Returns the persisted result row of a completed job
func (h *JobHandler) GetJobResult(c *gin.Context) {
	jobID := c.Param("job_id")

	if h.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Durable store is not configured",
		})
		return
	}

	row, err := h.results.GetResult(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job result not found",
			})
			return
		}
		h.logger.Error("Failed to get job result",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job result",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobResultResponse{
		JobID:      row.JobID,
		ResultKind: row.ResultKind,
		Result:     row.Result,
		CreatedAt:  row.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  row.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// ListJobs handles GET /api/jobs
// Lists durable job summaries, newest first, with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Durable store is not configured",
		})
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !jobs.Status(req.Status).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	rows, err := h.jobs.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(rows) > req.PageSize
	if hasMore {
		rows = rows[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(rows))
	for i, row := range rows {
		jobResponse[i] = dto.JobDTO{
			JobID:     row.JobID,
			Kind:      row.Kind,
			Status:    row.Status,
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt: row.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		last := rows[len(rows)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}
