package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/mediaflow/internal/api/dto"
	"github.com/cuongbtq/mediaflow/internal/batch"
)

// CreateBatch handles POST /api/v1/batches
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var opts batch.Options
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.batches.SubmitBatch(c.Request.Context(), opts)
	if err != nil {
		h.logger.Error("Failed to submit batch", slog.String("error", err.Error()))
		if len(res.JobIDs) > 0 {
			// some tasks are already queued; report them with the error
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "batch": res})
			return
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, res)
}

// BatchProgress handles POST /api/v1/batches/progress
func (h *BatchHandler) BatchProgress(c *gin.Context) {
	var req dto.BatchProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobIds is required"})
		return
	}

	p, err := h.batches.Progress(c.Request.Context(), req.JobIDs)
	if err != nil {
		h.logger.Error("Failed to read batch progress", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read batch progress"})
		return
	}
	c.JSON(http.StatusOK, p)
}
