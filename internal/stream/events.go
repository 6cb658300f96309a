package stream

import (
	"encoding/base64"

	"stylizer/api/internal/models"
)

// Event names used on the wire by the push adapter.
const (
	EventStep     = "step"
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventError    = "error"
)

// StepPayload reports one named pipeline step entering or leaving a state.
// Review is attached when a review verdict accompanies the transition.
type StepPayload struct {
	Step    string               `json:"step"`
	State   string               `json:"state"`
	Attempt int                  `json:"attempt,omitempty"`
	Review  *models.ReviewResult `json:"review,omitempty"`
}

// ChunkPayload carries one slice of the base64-encoded result image. The
// consumer concatenates Data for indexes 0..Total-1 in emission order and
// base64-decodes the whole, so no single event carries the full payload.
type ChunkPayload struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	Data  string `json:"data"`
}

// CompletePayload is the terminal success event.
type CompletePayload struct {
	TaskID       string               `json:"taskId"`
	Analysis     string               `json:"analysis,omitempty"`
	Review       *models.ReviewResult `json:"review,omitempty"`
	AttemptCount int                  `json:"attemptCount"`
}

// ErrorPayload is the terminal failure event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Chunks encodes image bytes and splits the encoding into fixed-size slices.
// chunkSize counts encoded characters. A zero or negative chunkSize yields a
// single chunk.
func Chunks(image []byte, chunkSize int) []ChunkPayload {
	encoded := base64.StdEncoding.EncodeToString(image)
	if chunkSize <= 0 || chunkSize >= len(encoded) {
		return []ChunkPayload{{Index: 0, Total: 1, Data: encoded}}
	}

	total := (len(encoded) + chunkSize - 1) / chunkSize
	chunks := make([]ChunkPayload, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		chunks = append(chunks, ChunkPayload{Index: i, Total: total, Data: encoded[start:end]})
	}
	return chunks
}
