package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stylizer/api/internal/models"
)

// ErrTaskNotFound covers both ids that never existed and records that have
// expired; callers cannot tell the two apart.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
)

const taskKeyPrefix = "task:"

// TaskRepository keeps task records in redis with a fixed lifetime from
// creation. One logical owner (the pipeline run) mutates a given task;
// concurrent access across different task ids is safe.
type TaskRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTaskRepository(client *redis.Client, ttl time.Duration) *TaskRepository {
	return &TaskRepository{
		client: client,
		ttl:    ttl,
	}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func (r *TaskRepository) Create(ctx context.Context, task models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	ok, err := r.client.SetNX(ctx, taskKey(task.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	if !ok {
		return ErrTaskExists
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (models.Task, error) {
	data, err := r.client.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return models.Task{}, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	return task, nil
}

// Update applies mutate to the stored record and writes it back. KEEPTTL
// preserves the expiry window anchored at creation, so updates never extend
// a task's lifetime.
func (r *TaskRepository) Update(ctx context.Context, id string, mutate func(*models.Task)) (models.Task, error) {
	task, err := r.Get(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	mutate(&task)
	task.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(task)
	if err != nil {
		return models.Task{}, fmt.Errorf("marshal task: %w", err)
	}

	if err := r.client.Set(ctx, taskKey(id), data, redis.KeepTTL).Err(); err != nil {
		return models.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	return task, nil
}
