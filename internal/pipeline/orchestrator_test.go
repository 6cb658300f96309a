package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stylizer/api/internal/config"
	"stylizer/api/internal/models"
)

// memStore is an in-memory stand-in for the redis task repository. It records
// every status written so tests can assert ordering properties.
type memStore struct {
	mu      sync.Mutex
	tasks   map[string]models.Task
	history []models.TaskStatus
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]models.Task)}
}

func (s *memStore) Create(ctx context.Context, task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return errors.New("task already exists")
	}
	s.tasks[task.ID] = task
	s.history = append(s.history, task.Status)
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, errors.New("task not found")
	}
	return task, nil
}

func (s *memStore) Update(ctx context.Context, id string, mutate func(*models.Task)) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, errors.New("task not found")
	}
	mutate(&task)
	task.UpdatedAt = time.Now().UTC()
	s.tasks[id] = task
	s.history = append(s.history, task.Status)
	return task, nil
}

type memImageStore struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func newMemImageStore() *memImageStore {
	return &memImageStore{puts: make(map[string][]byte)}
}

func (s *memImageStore) PutGenerated(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[key] = data
	return key, nil
}

type failingImageStore struct{}

func (failingImageStore) PutGenerated(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", errors.New("bucket unavailable")
}

// stubCapability wires scriptedClient generation/review with a fixed analysis.
type stubCapability struct {
	*scriptedClient
	analysis   *models.Analysis
	analyzeErr error
}

func (c *stubCapability) Analyze(ctx context.Context, image []byte, mime string) (*models.Analysis, error) {
	if c.analyzeErr != nil {
		return nil, c.analyzeErr
	}
	return c.analysis, nil
}

type memArchive struct {
	mu       sync.Mutex
	recorded []models.Task
}

func (a *memArchive) Record(ctx context.Context, task models.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorded = append(a.recorded, task)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func goodAnalysis() *models.Analysis {
	return &models.Analysis{
		Structured: true,
		Subject:    "a golden retriever",
		Setting:    "a sunny park",
		Mood:       "playful",
		Colors:     "green and gold",
	}
}

func seedTask(t *testing.T, store *memStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := store.Create(context.Background(), models.Task{
		ID:           id,
		Status:       models.TaskStatusAnalyzing,
		OriginalKey:  id + ".png",
		OriginalMIME: "image/png",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
}

func newTestOrchestrator(store *memStore, capability Capability, images ImageStore, archive Archiver, cfg config.PipelineConfig) *Orchestrator {
	return NewOrchestrator(store, capability, images, archive, cfg, zerolog.Nop())
}

func TestOrchestratorReviewDisabledSinglePass(t *testing.T) {
	// Scenario: review disabled, one retry budget. Exactly one generation,
	// a fully approved placeholder verdict, and a completed task.
	store := newMemStore()
	images := newMemImageStore()
	capability := &stubCapability{scriptedClient: &scriptedClient{}, analysis: goodAnalysis()}
	archive := &memArchive{}
	orch := newTestOrchestrator(store, capability, images, archive, config.PipelineConfig{MaxRetries: 1, ReviewEnabled: false})

	seedTask(t, store, "t1")
	task, image, err := orch.Run(context.Background(), "t1", []byte("photo"), "image/png", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed", task.Status)
	}
	if capability.generateCalls != 1 || capability.reviewCalls != 0 {
		t.Fatalf("calls = %d/%d, want 1 generate and 0 review", capability.generateCalls, capability.reviewCalls)
	}
	if len(task.ReviewHistory) != 1 || !task.ReviewHistory[0].Approved || task.ReviewHistory[0].OverallScore != 10 {
		t.Fatalf("want one approved placeholder verdict with overall 10, got %+v", task.ReviewHistory)
	}
	if len(image) == 0 {
		t.Fatal("expected generated image bytes")
	}
	if _, ok := images.puts[task.GeneratedKey]; !ok {
		t.Fatalf("generated image not persisted under %q", task.GeneratedKey)
	}

	sawGenerating := false
	for _, status := range store.history {
		if status == models.TaskStatusGenerating {
			sawGenerating = true
		}
		if status == models.TaskStatusReviewing || status == models.TaskStatusRegenerating {
			t.Fatalf("review sub-status %s observed with review disabled", status)
		}
	}
	if !sawGenerating {
		t.Fatal("generating status never observed")
	}
}

func TestOrchestratorInfeasibleAnalysis(t *testing.T) {
	store := newMemStore()
	capability := &stubCapability{
		scriptedClient: &scriptedClient{},
		analysis: &models.Analysis{
			Structured: true,
			Infeasible: true,
			Reason:     "image is a blank wall",
		},
	}
	archive := &memArchive{}
	orch := newTestOrchestrator(store, capability, newMemImageStore(), archive, config.PipelineConfig{MaxRetries: 3, ReviewEnabled: true})

	seedTask(t, store, "t2")
	_, _, err := orch.Run(context.Background(), "t2", []byte("photo"), "image/png", nil)
	if !errors.Is(err, ErrInfeasibleInput) {
		t.Fatalf("want ErrInfeasibleInput, got %v", err)
	}

	task, _ := store.Get(context.Background(), "t2")
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if !strings.Contains(task.ErrorMessage, "image is a blank wall") {
		t.Fatalf("error message must carry the analysis reason, got %q", task.ErrorMessage)
	}
	if capability.generateCalls != 0 {
		t.Fatal("generation must not run for infeasible input")
	}
	if len(archive.recorded) != 1 {
		t.Fatalf("terminal outcome not archived, got %d records", len(archive.recorded))
	}
}

func TestOrchestratorThirdAttemptApproved(t *testing.T) {
	store := newMemStore()
	capability := &stubCapability{
		scriptedClient: &scriptedClient{verdicts: []models.ReviewResult{
			rejectedVerdict(),
			rejectedVerdict(),
			approvedVerdict(),
		}},
		analysis: goodAnalysis(),
	}
	orch := newTestOrchestrator(store, capability, newMemImageStore(), nil, config.PipelineConfig{MaxRetries: 3, ReviewEnabled: true})

	seedTask(t, store, "t3")
	task, _, err := orch.Run(context.Background(), "t3", []byte("photo"), "image/png", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed", task.Status)
	}
	if task.AttemptCount != 3 {
		t.Fatalf("attemptCount = %d, want 3", task.AttemptCount)
	}
	if capability.generateCalls != 3 || capability.reviewCalls != 3 {
		t.Fatalf("calls = %d/%d, want 3/3", capability.generateCalls, capability.reviewCalls)
	}
	if n := len(task.ReviewHistory); n != 3 {
		t.Fatalf("review history length = %d, want 3", n)
	}
	final := task.ReviewHistory[len(task.ReviewHistory)-1]
	if !final.Approved {
		t.Fatal("stored final verdict must be the approved one")
	}
}

func TestOrchestratorExhaustionCompletes(t *testing.T) {
	// Both reviews rejected: the task still completes, carrying the last
	// rejected verdict. Exhaustion is best-effort completion, not failure.
	store := newMemStore()
	capability := &stubCapability{scriptedClient: &scriptedClient{}, analysis: goodAnalysis()}
	orch := newTestOrchestrator(store, capability, newMemImageStore(), nil, config.PipelineConfig{MaxRetries: 2, ReviewEnabled: true})

	seedTask(t, store, "t4")
	task, _, err := orch.Run(context.Background(), "t4", []byte("photo"), "image/png", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %s, want completed despite exhaustion", task.Status)
	}
	if task.AttemptCount != 2 {
		t.Fatalf("attemptCount = %d, want 2", task.AttemptCount)
	}
	final := task.ReviewHistory[len(task.ReviewHistory)-1]
	if final.Approved {
		t.Fatal("exhausted task must store a rejected final verdict")
	}
}

func TestOrchestratorGenerateFailureFailsTask(t *testing.T) {
	store := newMemStore()
	capability := &stubCapability{
		scriptedClient: &scriptedClient{generateErr: errors.New("gateway down")},
		analysis:       goodAnalysis(),
	}
	orch := newTestOrchestrator(store, capability, newMemImageStore(), nil, config.PipelineConfig{MaxRetries: 3, ReviewEnabled: true})

	seedTask(t, store, "t5")
	_, _, err := orch.Run(context.Background(), "t5", []byte("photo"), "image/png", nil)
	if err == nil {
		t.Fatal("expected error")
	}

	task, _ := store.Get(context.Background(), "t5")
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if task.ErrorMessage == "" {
		t.Fatal("failed task must carry the captured error message")
	}
}

func TestOrchestratorStorageFailureFailsTask(t *testing.T) {
	store := newMemStore()
	capability := &stubCapability{scriptedClient: &scriptedClient{}, analysis: goodAnalysis()}
	orch := newTestOrchestrator(store, capability, failingImageStore{}, nil, config.PipelineConfig{MaxRetries: 1, ReviewEnabled: false})

	seedTask(t, store, "t6")
	_, _, err := orch.Run(context.Background(), "t6", []byte("photo"), "image/png", nil)
	if err == nil {
		t.Fatal("expected error")
	}

	task, _ := store.Get(context.Background(), "t6")
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
}

func TestOrchestratorStatusMonotonicForPollers(t *testing.T) {
	store := newMemStore()
	capability := &stubCapability{
		scriptedClient: &scriptedClient{verdicts: []models.ReviewResult{
			rejectedVerdict(),
			rejectedVerdict(),
			approvedVerdict(),
		}},
		analysis: goodAnalysis(),
	}
	orch := newTestOrchestrator(store, capability, newMemImageStore(), nil, config.PipelineConfig{MaxRetries: 3, ReviewEnabled: true})

	seedTask(t, store, "t7")
	if _, _, err := orch.Run(context.Background(), "t7", []byte("photo"), "image/png", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lastRank := -1
	for i, status := range store.history {
		rank := status.Rank()
		if rank < lastRank {
			t.Fatalf("status rank regressed at write %d: %s (rank %d) after rank %d", i, status, rank, lastRank)
		}
		lastRank = rank
	}
}

func TestOrchestratorEventStream(t *testing.T) {
	store := newMemStore()
	capability := &stubCapability{
		scriptedClient: &scriptedClient{verdicts: []models.ReviewResult{
			rejectedVerdict(),
			approvedVerdict(),
		}},
		analysis: goodAnalysis(),
	}
	orch := newTestOrchestrator(store, capability, newMemImageStore(), nil, config.PipelineConfig{MaxRetries: 3, ReviewEnabled: true})
	sink := &recordingSink{}

	seedTask(t, store, "t8")
	if _, _, err := orch.Run(context.Background(), "t8", []byte("photo"), "image/png", sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	type step struct{ name, state string }
	var seen []step
	for _, ev := range sink.events {
		seen = append(seen, step{ev.Step, ev.State})
	}
	want := []step{
		{"analyze", StateProcessing},
		{"analyze", StateCompleted},
		{"generate", StateProcessing}, // attempt 1
		{"generate", StateCompleted},
		{"review", StateProcessing},
		{"review", StateCompleted}, // rejection
		{"generate", StateProcessing}, // attempt 2
		{"generate", StateCompleted},
		{"review", StateProcessing},
		{"review", StateCompleted}, // approval
		{"upload", StateProcessing},
		{"upload", StateCompleted},
	}
	if len(seen) != len(want) {
		t.Fatalf("event steps = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, seen[i], want[i])
		}
	}
}
