package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kalpovskii/tasktracker/internal/app/models"
)

var (
	ErrNotFound       = errors.New("task not found")
	ErrDuplicateTitle = errors.New("task title already exists")
)

// TaskRepository is the storage collaborator of the task service.
// GetByID returns (nil, nil) when the task does not exist.
type TaskRepository interface {
	List(ctx context.Context) ([]models.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ExistsByTitle(ctx context.Context, title string) (bool, error)
	Add(ctx context.Context, task *models.Task) error
	Toggle(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}
