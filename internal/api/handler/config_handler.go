package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/research-crew/internal/workflow"
	"github.com/gin-gonic/gin"
)

// GetManager handles GET /api/config/research-manager
func (h *ConfigHandler) GetManager(c *gin.Context) {
	c.JSON(http.StatusOK, h.prompts.Manager())
}

// UpdateManager handles PUT /api/config/research-manager
func (h *ConfigHandler) UpdateManager(c *gin.Context) {
	patch, ok := h.bindPersonaPatch(c)
	if !ok {
		return
	}

	persona := h.prompts.UpdateManager(patch)
	h.logger.Info("Research manager configuration updated")

	c.JSON(http.StatusOK, gin.H{
		"message": "Research manager configuration updated successfully",
		"config":  persona,
	})
}

// GetAgent handles GET /api/config/research-agent
func (h *ConfigHandler) GetAgent(c *gin.Context) {
	c.JSON(http.StatusOK, h.prompts.Agent())
}

// UpdateAgent handles PUT /api/config/research-agent
func (h *ConfigHandler) UpdateAgent(c *gin.Context) {
	patch, ok := h.bindPersonaPatch(c)
	if !ok {
		return
	}

	persona := h.prompts.UpdateAgent(patch)
	h.logger.Info("Research agent configuration updated")

	c.JSON(http.StatusOK, gin.H{
		"message": "Research agent configuration updated successfully",
		"config":  persona,
	})
}

func (h *ConfigHandler) bindPersonaPatch(c *gin.Context) (workflow.PersonaPatch, bool) {
	var patch workflow.PersonaPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid data provided",
		})
		return patch, false
	}

	if patch.Role == nil && patch.Goal == nil && patch.Backstory == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid data provided",
		})
		return patch, false
	}
	return patch, true
}

// GetTasks returns the handler for GET /api/config/<kind>-analyse
func (h *ConfigHandler) GetTasks(kind workflow.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, ok := h.prompts.Tasks(kind)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Unknown crew",
			})
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// UpdateTasks returns the handler for PUT /api/config/<kind>-analyse
// Templates are validated by rendering them before they are stored.
func (h *ConfigHandler) UpdateTasks(kind workflow.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch workflow.TaskTemplatesPatch
		if err := c.ShouldBindJSON(&patch); err != nil || (patch.SearchTask == nil && patch.AnalyseTask == nil) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid data provided",
			})
			return
		}

		tasks, err := h.prompts.UpdateTasks(kind, patch)
		if err != nil {
			if errors.Is(err, workflow.ErrInvalidTemplate) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": err.Error(),
				})
				return
			}
			h.logger.Error("Failed to update task templates",
				slog.String("kind", kind.String()),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update task templates",
			})
			return
		}

		h.logger.Info("Task templates updated", slog.String("kind", kind.String()))

		c.JSON(http.StatusOK, gin.H{
			"message": "Task configuration updated successfully",
			"config":  tasks,
		})
	}
}
