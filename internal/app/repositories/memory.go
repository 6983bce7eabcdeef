package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kalpovskii/tasktracker/internal/app/models"
)

type MemoryTaskRepo struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]models.Task
}

func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{tasks: make(map[uuid.UUID]models.Task)}
}

func (r *MemoryTaskRepo) List(ctx context.Context) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *MemoryTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	t, ok := r.tasks[id]
	r.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *MemoryTaskRepo) ExistsByTitle(ctx context.Context, title string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hasTitleLocked(models.NormalizeTitle(title)), nil
}

func (r *MemoryTaskRepo) hasTitleLocked(normalized string) bool {
	for _, t := range r.tasks {
		if models.NormalizeTitle(t.Title) == normalized {
			return true
		}
	}
	return false
}

func (r *MemoryTaskRepo) Add(ctx context.Context, task *models.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already stored", task.ID)
	}
	if r.hasTitleLocked(models.NormalizeTitle(task.Title)) {
		return ErrDuplicateTitle
	}

	r.tasks[task.ID] = *task
	return nil
}

func (r *MemoryTaskRepo) Toggle(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Completed = !t.Completed
	r.tasks[id] = t
	return nil
}

func (r *MemoryTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}
