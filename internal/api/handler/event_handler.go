package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	eventBuffer       = 256
	keepaliveInterval = 15 * time.Second
)

// StreamEvents handles GET /api/v1/events as server-sent events. Clients resume
// with ?since=<seq>; retained history after that sequence is replayed first.
func (h *JobHandler) StreamEvents(c *gin.Context) {
	var since int64
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = v
	}

	// subscribe before reading history so nothing falls in between
	events, cancel := h.events.Subscribe(eventBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	last := since
	for _, e := range h.events.Since(since) {
		c.SSEvent(string(e.Type), e)
		last = e.Seq
	}
	c.Writer.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			if e.Seq <= last {
				return true
			}
			c.SSEvent(string(e.Type), e)
			last = e.Seq
			return true
		case <-keepalive.C:
			_, _ = io.WriteString(w, ": keepalive\n\n")
			return true
		}
	})
}
