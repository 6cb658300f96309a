package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stylizer/api/internal/config"
	"stylizer/api/internal/models"
	"stylizer/api/internal/pipeline"
	"stylizer/api/internal/repository"
	"stylizer/api/internal/security"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]models.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]models.Task)}
}

func (s *fakeStore) Create(ctx context.Context, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return repository.ErrTaskExists
	}
	s.tasks[task.ID] = task
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, repository.ErrTaskNotFound
	}
	return task, nil
}

func (s *fakeStore) Update(ctx context.Context, id string, mutate func(*models.Task)) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, repository.ErrTaskNotFound
	}
	mutate(&task)
	task.UpdatedAt = time.Now().UTC()
	s.tasks[id] = task
	return task, nil
}

func (s *fakeStore) put(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

type fakeObjects struct {
	mu        sync.Mutex
	originals map[string][]byte
	generated map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		originals: make(map[string][]byte),
		generated: make(map[string][]byte),
	}
}

func (s *fakeObjects) PutOriginal(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.originals[key] = data
	return key, nil
}

func (s *fakeObjects) PutGenerated(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generated[key] = data
	return key, nil
}

func (s *fakeObjects) GetGenerated(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.generated[key]
	if !ok {
		return nil, errors.New("object missing")
	}
	return data, nil
}

type happyCapability struct{}

func (happyCapability) Analyze(ctx context.Context, image []byte, mime string) (*models.Analysis, error) {
	return &models.Analysis{Structured: true, Subject: "a cat"}, nil
}

func (happyCapability) Generate(ctx context.Context, instruction string, reference []byte, referenceMIME string) ([]byte, error) {
	return []byte("stylized"), nil
}

func (happyCapability) Review(ctx context.Context, candidate, reference []byte) (models.ReviewResult, error) {
	v := models.ApprovedPlaceholder()
	return v, nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Pipeline: config.PipelineConfig{
			MaxRetries:     2,
			ReviewEnabled:  false,
			TaskTTL:        time.Hour,
			MaxUploadBytes: 1 << 20,
			ChunkSize:      1024,
		},
	}
}

func newTestService(t *testing.T, cfg *config.AppConfig, store *fakeStore, objects *fakeObjects) *TaskService {
	t.Helper()
	logger := zerolog.Nop()
	orch := pipeline.NewOrchestrator(store, happyCapability{}, objects, nil, cfg.Pipeline, logger)
	runner := pipeline.NewRunner(logger)
	verify := func(presented string) bool {
		return security.VerifyAccessToken(cfg.Security.AccessTokenHash, presented)
	}
	return NewTaskService(store, objects, orch, runner, verify, cfg, logger)
}

func TestSubmitValidation(t *testing.T) {
	hashed, err := security.HashAccessToken("let-me-in")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}

	tests := []struct {
		name     string
		cfg      func(*config.AppConfig)
		input    SubmitInput
		wantCode string
	}{
		{
			name:     "empty payload",
			input:    SubmitInput{},
			wantCode: CodeNoImage,
		},
		{
			name: "oversized payload",
			input: SubmitInput{
				Data: append(append([]byte{}, pngHeader...), make([]byte, 2<<20)...),
			},
			wantCode: CodeImageTooLarge,
		},
		{
			name:     "unsupported format",
			input:    SubmitInput{Data: []byte("<svg></svg>")},
			wantCode: CodeUnsupportedType,
		},
		{
			name: "declared type mismatch",
			input: SubmitInput{
				Data:         pngHeader,
				DeclaredMIME: "image/jpeg",
			},
			wantCode: CodeUnsupportedType,
		},
		{
			name: "missing access token",
			cfg: func(c *config.AppConfig) {
				c.Security.RequireToken = true
				c.Security.AccessTokenHash = hashed
			},
			input:    SubmitInput{Data: pngHeader},
			wantCode: CodeInvalidAccessToken,
		},
		{
			name: "wrong access token",
			cfg: func(c *config.AppConfig) {
				c.Security.RequireToken = true
				c.Security.AccessTokenHash = hashed
			},
			input:    SubmitInput{Data: pngHeader, AccessToken: "guess"},
			wantCode: CodeInvalidAccessToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(cfg)
			}
			svc := newTestService(t, cfg, newFakeStore(), newFakeObjects())

			_, err := svc.Submit(context.Background(), tt.input)
			ve, ok := IsValidation(err)
			if !ok {
				t.Fatalf("want validation error, got %v", err)
			}
			if ve.Code != tt.wantCode {
				t.Fatalf("code = %s, want %s", ve.Code, tt.wantCode)
			}
		})
	}
}

func TestSubmitRunsPipelineInBackground(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := newTestService(t, testConfig(), store, objects)

	task, err := svc.Submit(context.Background(), SubmitInput{Data: pngHeader, AccessToken: "let-me-in"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != models.TaskStatusAnalyzing {
		t.Fatalf("initial status = %s, want analyzing", task.Status)
	}
	if _, ok := objects.originals[task.OriginalKey]; !ok {
		t.Fatal("original image not persisted")
	}

	deadline := time.After(2 * time.Second)
	for {
		current, err := store.Get(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if current.Status.Terminal() {
			if current.Status != models.TaskStatusCompleted {
				t.Fatalf("terminal status = %s (%s), want completed", current.Status, current.ErrorMessage)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("task never reached a terminal state, stuck at %s", current.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStatusProjectsErrorOnlyWhenFailed(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, testConfig(), store, newFakeObjects())

	store.put(models.Task{ID: "running", Status: models.TaskStatusGenerating, Attempt: 2, ErrorMessage: "stale"})
	store.put(models.Task{ID: "broken", Status: models.TaskStatusFailed, ErrorMessage: "analyze: gateway down"})

	running, err := svc.Status(context.Background(), "running")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running.ErrorMessage != "" {
		t.Fatal("non-failed status must not expose an error message")
	}
	if running.Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", running.Attempt)
	}

	broken, err := svc.Status(context.Background(), "broken")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if broken.ErrorMessage != "analyze: gateway down" {
		t.Fatalf("failed status must expose the error, got %q", broken.ErrorMessage)
	}
}

func TestStatusUnknownTask(t *testing.T) {
	svc := newTestService(t, testConfig(), newFakeStore(), newFakeObjects())

	_, err := svc.Status(context.Background(), "never-existed")
	if !errors.Is(err, repository.ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound, got %v", err)
	}
}

func TestResultRequiresCompletion(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, testConfig(), store, newFakeObjects())

	store.put(models.Task{ID: "inflight", Status: models.TaskStatusReviewing})

	_, err := svc.Result(context.Background(), "inflight")
	var notDone *ErrNotCompleted
	if !errors.As(err, &notDone) {
		t.Fatalf("want ErrNotCompleted, got %v", err)
	}
	if notDone.Status != models.TaskStatusReviewing {
		t.Fatalf("rejection must name the current status, got %s", notDone.Status)
	}
}

func TestResultForCompletedTask(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	svc := newTestService(t, testConfig(), store, objects)

	verdict := models.ApprovedPlaceholder()
	objects.generated["done.png"] = []byte("stylized bytes")
	store.put(models.Task{
		ID:            "done",
		Status:        models.TaskStatusCompleted,
		GeneratedKey:  "done.png",
		Analysis:      &models.Analysis{Structured: true, Subject: "a cat"},
		ReviewHistory: []models.ReviewResult{verdict},
		AttemptCount:  1,
	})

	view, err := svc.Result(context.Background(), "done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(view.Image) != "stylized bytes" {
		t.Fatalf("image = %q", view.Image)
	}
	if view.Review == nil || !view.Review.Approved {
		t.Fatal("result must carry the final verdict")
	}
	if view.Analysis == "" {
		t.Fatal("result must carry the analysis summary")
	}
}
