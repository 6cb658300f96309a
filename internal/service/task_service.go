package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stylizer/api/internal/config"
	"stylizer/api/internal/ids"
	"stylizer/api/internal/media/sniffer"
	"stylizer/api/internal/models"
	"stylizer/api/internal/pipeline"
)

// Validation error codes returned to HTTP callers before a task exists.
const (
	CodeNoImage            = "NO_IMAGE"
	CodeImageTooLarge      = "IMAGE_TOO_LARGE"
	CodeUnsupportedType    = "UNSUPPORTED_IMAGE_TYPE"
	CodeInvalidAccessToken = "INVALID_ACCESS_TOKEN"
)

// ValidationError rejects a submission synchronously; no task record is
// created and the pipeline never runs.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrNotCompleted rejects a result read for a task that has not finished.
// The current status is included so callers can report it.
type ErrNotCompleted struct {
	Status models.TaskStatus
}

func (e *ErrNotCompleted) Error() string {
	return fmt.Sprintf("task not completed, current status: %s", e.Status)
}

// TokenVerifier checks the optional upload access token.
type TokenVerifier func(presented string) bool

// ObjectStorage is the slice of the object store the service touches.
type ObjectStorage interface {
	PutOriginal(ctx context.Context, key string, data []byte, contentType string) (string, error)
	GetGenerated(ctx context.Context, key string) ([]byte, error)
}

type SubmitInput struct {
	Data         []byte
	DeclaredMIME string
	AccessToken  string
}

// StatusView is the pull adapter's status projection.
type StatusView struct {
	TaskID       string            `json:"taskId"`
	Status       models.TaskStatus `json:"status"`
	Attempt      int               `json:"attempt,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// ResultView is the pull adapter's result projection, valid only for
// completed tasks.
type ResultView struct {
	TaskID       string               `json:"taskId"`
	ImageKey     string               `json:"imageKey"`
	Image        []byte               `json:"-"`
	Analysis     string               `json:"analysis,omitempty"`
	Review       *models.ReviewResult `json:"review,omitempty"`
	AttemptCount int                  `json:"attemptCount"`
}

// TaskService validates submissions, creates task records, and hands
// execution to the orchestrator; for the async path the runner carries the
// work past the request's lifetime. Reads for both adapters go through the
// task store, never through in-process state.
type TaskService struct {
	tasks       pipeline.Store
	store       ObjectStorage
	orch        *pipeline.Orchestrator
	runner      *pipeline.Runner
	verifyToken TokenVerifier
	cfg         *config.AppConfig
	log         zerolog.Logger
}

func NewTaskService(tasks pipeline.Store, store ObjectStorage, orch *pipeline.Orchestrator, runner *pipeline.Runner, verifyToken TokenVerifier, cfg *config.AppConfig, log zerolog.Logger) *TaskService {
	return &TaskService{
		tasks:       tasks,
		store:       store,
		orch:        orch,
		runner:      runner,
		verifyToken: verifyToken,
		cfg:         cfg,
		log:         log,
	}
}

// Submit validates the upload, persists the original, creates the task
// record, and schedules the pipeline in the background. The returned task is
// already in status analyzing; callers poll from here.
func (s *TaskService) Submit(ctx context.Context, input SubmitInput) (models.Task, error) {
	task, data, mime, err := s.accept(ctx, input)
	if err != nil {
		return models.Task{}, err
	}

	s.runner.Spawn(task.ID, func(runCtx context.Context) {
		// Errors are recorded on the task record; the submitting request
		// has long since returned.
		_, _, _ = s.orch.Run(runCtx, task.ID, data, mime, nil)
	})

	return task, nil
}

// Process is the synchronous single-request variant: same validation and
// task creation, but the pipeline runs on the caller's connection and
// progress flows through sink.
func (s *TaskService) Process(ctx context.Context, input SubmitInput, sink pipeline.EventSink) (models.Task, []byte, error) {
	task, data, mime, err := s.accept(ctx, input)
	if err != nil {
		return models.Task{}, nil, err
	}
	return s.orch.Run(ctx, task.ID, data, mime, sink)
}

func (s *TaskService) accept(ctx context.Context, input SubmitInput) (models.Task, []byte, string, error) {
	if s.cfg.Security.RequireToken && !s.verifyToken(input.AccessToken) {
		return models.Task{}, nil, "", &ValidationError{Code: CodeInvalidAccessToken, Message: "access token missing or invalid"}
	}

	data := input.Data
	if len(data) == 0 {
		return models.Task{}, nil, "", &ValidationError{Code: CodeNoImage, Message: "no image file in request"}
	}
	if int64(len(data)) > s.cfg.Pipeline.MaxUploadBytes {
		return models.Task{}, nil, "", &ValidationError{
			Code:    CodeImageTooLarge,
			Message: fmt.Sprintf("image exceeds %d bytes", s.cfg.Pipeline.MaxUploadBytes),
		}
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	detected, err := sniffer.DetectHead(head)
	if err != nil {
		return models.Task{}, nil, "", &ValidationError{Code: CodeUnsupportedType, Message: "only jpeg, png, and webp photos are accepted"}
	}
	if input.DeclaredMIME != "" && input.DeclaredMIME != detected.MIME {
		return models.Task{}, nil, "", &ValidationError{
			Code:    CodeUnsupportedType,
			Message: fmt.Sprintf("declared type %s does not match actual %s", input.DeclaredMIME, detected.MIME),
		}
	}

	taskID := ids.New()
	originalKey := fmt.Sprintf("%s.%s", taskID, detected.Type)

	if _, err := s.store.PutOriginal(ctx, originalKey, data, detected.MIME); err != nil {
		return models.Task{}, nil, "", fmt.Errorf("store original: %w", err)
	}

	now := time.Now().UTC()
	task := models.Task{
		ID:           taskID,
		Status:       models.TaskStatusAnalyzing,
		OriginalKey:  originalKey,
		OriginalMIME: detected.MIME,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return models.Task{}, nil, "", fmt.Errorf("create task: %w", err)
	}

	s.log.Info().Str("task_id", taskID).Str("mime", detected.MIME).Int("size", len(data)).Msg("task accepted")
	return task, data, detected.MIME, nil
}

// Status reads the pull adapter's status view. Unknown and expired ids are
// the same not-found error.
func (s *TaskService) Status(ctx context.Context, taskID string) (StatusView, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return StatusView{}, err
	}

	view := StatusView{
		TaskID:  task.ID,
		Status:  task.Status,
		Attempt: task.Attempt,
	}
	if task.Status == models.TaskStatusFailed {
		view.ErrorMessage = task.ErrorMessage
	}
	return view, nil
}

// Result returns the generated image and analysis for a completed task, and
// ErrNotCompleted naming the current status otherwise.
func (s *TaskService) Result(ctx context.Context, taskID string) (ResultView, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return ResultView{}, err
	}
	if task.Status != models.TaskStatusCompleted {
		return ResultView{}, &ErrNotCompleted{Status: task.Status}
	}

	image, err := s.store.GetGenerated(ctx, task.GeneratedKey)
	if err != nil {
		return ResultView{}, fmt.Errorf("load generated image: %w", err)
	}

	view := ResultView{
		TaskID:       task.ID,
		ImageKey:     task.GeneratedKey,
		Image:        image,
		AttemptCount: task.AttemptCount,
	}
	if task.Analysis != nil {
		view.Analysis = task.Analysis.Summary()
	}
	if n := len(task.ReviewHistory); n > 0 {
		view.Review = &task.ReviewHistory[n-1]
	}
	return view, nil
}

// IsValidation reports whether err is a synchronous submission rejection.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
