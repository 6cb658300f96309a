package pipeline

import (
	"context"

	"stylizer/api/internal/models"
)

// Store is the slice of the task repository the pipeline mutates. The
// pipeline run is the single logical owner of its task record.
type Store interface {
	Create(ctx context.Context, task models.Task) error
	Get(ctx context.Context, id string) (models.Task, error)
	Update(ctx context.Context, id string, mutate func(*models.Task)) (models.Task, error)
}

// Capability groups the three vision-gateway calls the pipeline consumes.
type Capability interface {
	Analyze(ctx context.Context, image []byte, mime string) (*models.Analysis, error)
	Generate(ctx context.Context, instruction string, reference []byte, referenceMIME string) ([]byte, error)
	Review(ctx context.Context, candidate, reference []byte) (models.ReviewResult, error)
}

// ImageStore is the slice of the object store the pipeline writes to.
type ImageStore interface {
	PutGenerated(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Archiver records terminal task outcomes. Best effort; a nil Archiver is
// valid and skips archiving.
type Archiver interface {
	Record(ctx context.Context, task models.Task) error
}

// Event is one observable progress transition, forwarded to whichever
// reporter adapter is active. Review is set only on regeneration events,
// carrying the rejection that caused the retry.
type Event struct {
	Step    string
	State   string
	Attempt int
	Review  *models.ReviewResult
}

const (
	StateProcessing = "processing"
	StateCompleted  = "completed"
)

// EventSink receives pipeline progress events. Implementations must not
// block; the pipeline emits inline.
type EventSink interface {
	Emit(event Event)
}
