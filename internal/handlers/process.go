package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stylizer/api/internal/pipeline"
	"stylizer/api/internal/stream"
)

// sseSink forwards pipeline progress onto the open SSE connection. Writes
// happen inline on the pipeline goroutine, which for this endpoint is the
// request goroutine itself.
type sseSink struct {
	c *gin.Context
}

func (s *sseSink) Emit(event pipeline.Event) {
	s.c.SSEvent(stream.EventStep, stream.StepPayload{
		Step:    event.Step,
		State:   event.State,
		Attempt: event.Attempt,
		Review:  event.Review,
	})
	s.c.Writer.Flush()
}

// ProcessStream is the synchronous single-request variant: the pipeline runs
// on this connection and the caller watches step events live, then receives
// the result image as ordered base64 chunks followed by one complete event.
// Failures after the stream opens surface as a terminal error event.
func (h HandlerSet) ProcessStream(c *gin.Context) {
	input, ok := h.readUpload(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	sink := &sseSink{c: c}

	task, image, err := h.taskService.Process(c.Request.Context(), input, sink)
	if err != nil {
		c.SSEvent(stream.EventError, stream.ErrorPayload{Message: err.Error()})
		c.Writer.Flush()
		return
	}

	for _, chunk := range stream.Chunks(image, h.cfg.Pipeline.ChunkSize) {
		c.SSEvent(stream.EventChunk, chunk)
		c.Writer.Flush()
	}

	complete := stream.CompletePayload{
		TaskID:       task.ID,
		AttemptCount: task.AttemptCount,
	}
	if task.Analysis != nil {
		complete.Analysis = task.Analysis.Summary()
	}
	if n := len(task.ReviewHistory); n > 0 {
		complete.Review = &task.ReviewHistory[n-1]
	}
	c.SSEvent(stream.EventComplete, complete)
	c.Writer.Flush()
}
