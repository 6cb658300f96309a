package models

import "time"

type TaskStatus string

const (
	TaskStatusPending      TaskStatus = "pending"
	TaskStatusAnalyzing    TaskStatus = "analyzing"
	TaskStatusGenerating   TaskStatus = "generating"
	TaskStatusReviewing    TaskStatus = "reviewing"
	TaskStatusRegenerating TaskStatus = "regenerating"
	TaskStatusCompleted    TaskStatus = "completed"
	TaskStatusFailed       TaskStatus = "failed"
)

// Rank maps a status onto the fixed stage ordering observed by pollers.
// Reviewing and regenerating are sub-states of the generation phase and
// collapse to the same rank, so a poller never sees status go backwards
// while the retry loop cycles.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusAnalyzing:
		return 1
	case TaskStatusGenerating, TaskStatusReviewing, TaskStatusRegenerating:
		return 2
	case TaskStatusCompleted, TaskStatusFailed:
		return 3
	default:
		return -1
	}
}

func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is one end-to-end stylization request. The record lives in the task
// store for a fixed window from CreatedAt; after that it is gone.
type Task struct {
	ID            string         `json:"id"`
	Status        TaskStatus     `json:"status"`
	Attempt       int            `json:"attempt"`
	OriginalKey   string         `json:"originalKey,omitempty"`
	OriginalMIME  string         `json:"originalMime,omitempty"`
	GeneratedKey  string         `json:"generatedKey,omitempty"`
	Analysis      *Analysis      `json:"analysis,omitempty"`
	ReviewHistory []ReviewResult `json:"reviewHistory,omitempty"`
	AttemptCount  int            `json:"attemptCount"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
