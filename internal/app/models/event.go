package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTaskCreated EventType = "task.created"
	EventTaskToggled EventType = "task.toggled"
	EventTaskDeleted EventType = "task.deleted"
)

// TaskEvent is published after a write has been committed to storage.
type TaskEvent struct {
	Type       EventType `json:"type"`
	TaskID     uuid.UUID `json:"taskId"`
	Title      string    `json:"title,omitempty"`
	Completed  bool      `json:"completed"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewTaskEvent(t EventType, task Task, at time.Time) TaskEvent {
	return TaskEvent{
		Type:       t,
		TaskID:     task.ID,
		Title:      task.Title,
		Completed:  task.Completed,
		OccurredAt: at,
	}
}
