package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/mediaflow/internal/api/dto"
	"github.com/cuongbtq/mediaflow/internal/library"
)

// GetMedia handles GET /api/v1/media/:media_id
func (h *MediaHandler) GetMedia(c *gin.Context) {
	ctx := c.Request.Context()
	mediaID := c.Param("media_id")

	state, err := h.media.State(ctx, mediaID)
	if err != nil {
		h.fail(c, mediaID, err)
		return
	}
	sections, err := h.media.Sections(ctx, mediaID)
	if err != nil {
		h.fail(c, mediaID, err)
		return
	}
	tags, err := h.media.Tags(ctx, mediaID)
	if err != nil {
		h.fail(c, mediaID, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMediaResponse(state, sections, tags))
}

// GetTranscript handles GET /api/v1/media/:media_id/transcript
func (h *MediaHandler) GetTranscript(c *gin.Context) {
	mediaID := c.Param("media_id")

	t, err := h.media.Transcript(c.Request.Context(), mediaID)
	if err != nil {
		h.fail(c, mediaID, err)
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no transcript stored"})
		return
	}

	if c.Query("format") == "srt" {
		c.Data(http.StatusOK, "application/x-subrip; charset=utf-8", []byte(t.SRT))
		return
	}
	c.JSON(http.StatusOK, gin.H{"mediaId": t.MediaID, "text": t.Text, "srt": t.SRT, "language": t.Language})
}

func (h *MediaHandler) fail(c *gin.Context, mediaID string, err error) {
	if errors.Is(err, library.ErrMediaNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("Failed to read media", slog.String("media_id", mediaID), slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read media"})
}
