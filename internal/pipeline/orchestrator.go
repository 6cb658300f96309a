package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"stylizer/api/internal/config"
	"stylizer/api/internal/models"
)

// ErrInfeasibleInput marks photos the analyzer judged unusable. The task ends
// failed with the analyzer's reason, but this is a normal outcome, not a
// system fault.
var ErrInfeasibleInput = errors.New("input not feasible for stylization")

// Orchestrator drives one task from its created record to a terminal state:
// analyze, build the instruction, run the generation-review loop, persist the
// output. The task store is the single source of truth both reporter adapters
// read from; the orchestrator is the only writer of lifecycle fields.
type Orchestrator struct {
	store   Store
	client  Capability
	images  ImageStore
	archive Archiver
	cfg     config.PipelineConfig
	log     zerolog.Logger
}

func NewOrchestrator(store Store, client Capability, images ImageStore, archive Archiver, cfg config.PipelineConfig, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		client:  client,
		images:  images,
		archive: archive,
		cfg:     cfg,
		log:     log,
	}
}

// Run executes the pipeline for a task whose record already exists with
// status analyzing and whose original image is provided. sink may be nil for
// the polling path. The generated image bytes are returned for the streaming
// path; on failure the error is also recorded on the task, so callers that
// only poll can ignore the return values.
func (o *Orchestrator) Run(ctx context.Context, taskID string, original []byte, mime string, sink EventSink) (models.Task, []byte, error) {
	log := o.log.With().Str("task_id", taskID).Logger()

	o.emit(sink, Event{Step: "analyze", State: StateProcessing})

	analysis, err := o.client.Analyze(ctx, original, mime)
	if err != nil {
		return o.fail(ctx, taskID, sink, fmt.Errorf("analyze: %w", err))
	}
	if analysis.Structured && analysis.Infeasible {
		reason := analysis.Reason
		if reason == "" {
			reason = "no usable subject found in the photo"
		}
		log.Info().Str("reason", reason).Msg("analysis judged input infeasible")
		return o.fail(ctx, taskID, sink, fmt.Errorf("%w: %s", ErrInfeasibleInput, reason))
	}

	if _, err := o.store.Update(ctx, taskID, func(t *models.Task) {
		t.Analysis = analysis
		t.Status = models.TaskStatusGenerating
	}); err != nil {
		return o.fail(ctx, taskID, sink, fmt.Errorf("persist analysis: %w", err))
	}

	o.emit(sink, Event{Step: "analyze", State: StateCompleted})

	instruction := BuildInstruction(analysis)

	loopResult, err := RunGenerationLoop(ctx, o.client, LoopInput{
		Instruction:   instruction,
		Reference:     original,
		ReferenceMIME: mime,
		MaxRetries:    o.cfg.MaxRetries,
		ReviewEnabled: o.cfg.ReviewEnabled,
		OnProgress: func(status models.TaskStatus, attempt int, review *models.ReviewResult) {
			o.recordProgress(ctx, taskID, status, attempt, review)
			o.emitProgress(sink, status, attempt, review)
		},
	})
	if err != nil {
		return o.fail(ctx, taskID, sink, err)
	}

	if o.cfg.ReviewEnabled {
		o.emit(sink, Event{Step: "review", State: StateCompleted, Attempt: loopResult.Attempts, Review: &loopResult.Review})
	} else {
		o.emit(sink, Event{Step: "generate", State: StateCompleted, Attempt: loopResult.Attempts})
	}

	o.emit(sink, Event{Step: "upload", State: StateProcessing})

	generatedKey := taskID + ".png"
	if _, err := o.images.PutGenerated(ctx, generatedKey, loopResult.Image, "image/png"); err != nil {
		return o.fail(ctx, taskID, sink, err)
	}

	o.emit(sink, Event{Step: "upload", State: StateCompleted})

	// Completion is unconditional once the loop returns: an exhausted loop
	// hands back its last candidate and a rejected verdict, and that is a
	// completed task, not a failed one.
	task, err := o.store.Update(ctx, taskID, func(t *models.Task) {
		t.Status = models.TaskStatusCompleted
		t.GeneratedKey = generatedKey
		t.ReviewHistory = append(t.ReviewHistory, loopResult.Review)
		t.AttemptCount = loopResult.Attempts
	})
	if err != nil {
		return o.fail(ctx, taskID, sink, fmt.Errorf("persist completion: %w", err))
	}

	o.recordOutcome(ctx, task)
	log.Info().
		Int("attempts", loopResult.Attempts).
		Bool("approved", loopResult.Review.Approved).
		Float64("overall_score", loopResult.Review.OverallScore).
		Msg("task completed")

	return task, loopResult.Image, nil
}

// recordProgress mirrors a loop transition into the task store so pollers see
// attempt-qualified sub-statuses. Rejected verdicts are appended when the
// regeneration event carries them; the final verdict is appended at
// completion.
func (o *Orchestrator) recordProgress(ctx context.Context, taskID string, status models.TaskStatus, attempt int, review *models.ReviewResult) {
	if _, err := o.store.Update(ctx, taskID, func(t *models.Task) {
		t.Status = status
		t.Attempt = attempt
		if review != nil {
			t.ReviewHistory = append(t.ReviewHistory, *review)
		}
	}); err != nil {
		o.log.Warn().Err(err).Str("task_id", taskID).Msg("progress update failed")
	}
}

func (o *Orchestrator) emitProgress(sink EventSink, status models.TaskStatus, attempt int, review *models.ReviewResult) {
	if sink == nil {
		return
	}
	switch status {
	case models.TaskStatusGenerating:
		o.emit(sink, Event{Step: "generate", State: StateProcessing, Attempt: attempt})
	case models.TaskStatusReviewing:
		o.emit(sink, Event{Step: "generate", State: StateCompleted, Attempt: attempt})
		o.emit(sink, Event{Step: "review", State: StateProcessing, Attempt: attempt})
	case models.TaskStatusRegenerating:
		o.emit(sink, Event{Step: "review", State: StateCompleted, Attempt: attempt, Review: review})
	}
}

func (o *Orchestrator) emit(sink EventSink, event Event) {
	if sink != nil {
		sink.Emit(event)
	}
}

func (o *Orchestrator) fail(ctx context.Context, taskID string, sink EventSink, cause error) (models.Task, []byte, error) {
	o.log.Error().Err(cause).Str("task_id", taskID).Msg("task failed")

	task, err := o.store.Update(ctx, taskID, func(t *models.Task) {
		t.Status = models.TaskStatusFailed
		t.ErrorMessage = cause.Error()
	})
	if err != nil {
		o.log.Error().Err(err).Str("task_id", taskID).Msg("recording failure state failed")
	} else {
		o.recordOutcome(ctx, task)
	}
	return task, nil, cause
}

func (o *Orchestrator) recordOutcome(ctx context.Context, task models.Task) {
	if o.archive == nil {
		return
	}
	if err := o.archive.Record(ctx, task); err != nil {
		o.log.Warn().Err(err).Str("task_id", task.ID).Msg("archive write failed")
	}
}
