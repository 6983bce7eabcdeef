package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/kalpovskii/tasktracker/internal/app/repositories"
)

const DefaultListTTL = 15 * time.Second

// afterWriteTimeout bounds cache invalidation and event publishing, which
// keep running after the caller has gone away.
const afterWriteTimeout = 5 * time.Second

// EventPublisher delivers task events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event models.TaskEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.TaskEvent) error { return nil }

type TaskService struct {
	repo      repositories.TaskRepository
	cache     repositories.TaskCache
	publisher EventPublisher
	logger    *slog.Logger
	listTTL   time.Duration

	now   func() time.Time
	newID func() uuid.UUID
}

type Option func(*TaskService)

func WithCache(cache repositories.TaskCache, ttl time.Duration) Option {
	return func(s *TaskService) {
		s.cache = cache
		if ttl > 0 {
			s.listTTL = ttl
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *TaskService) {
		s.publisher = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *TaskService) {
		s.logger = l
	}
}

func NewTaskService(repo repositories.TaskRepository, opts ...Option) *TaskService {
	s := &TaskService{
		repo:      repo,
		cache:     repositories.NopTaskCache{},
		publisher: nopPublisher{},
		logger:    slog.Default(),
		listTTL:   DefaultListTTL,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every task, most recently created first.
func (s *TaskService) List(ctx context.Context) ([]models.Task, error) {
	if tasks, err := s.cache.GetTaskList(ctx); err == nil && tasks != nil {
		return tasks, nil
	} else if err != nil {
		s.logger.WarnContext(ctx, "task list cache read failed", slog.Any("error", err))
	}

	version, versionErr := s.cache.TaskListVersion(ctx)

	tasks, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	if versionErr != nil {
		s.logger.WarnContext(ctx, "task list cache version read failed", slog.Any("error", versionErr))
	} else if err := s.cache.SetTaskList(ctx, tasks, version, s.listTTL); err != nil {
		s.logger.WarnContext(ctx, "task list cache write failed", slog.Any("error", err))
	}

	return tasks, nil
}

func (s *TaskService) Create(ctx context.Context, title string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Reason: ReasonTitleRequired}
	}

	exists, err := s.repo.ExistsByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &ValidationError{Reason: ReasonDuplicateTitle}
	}

	task := &models.Task{
		ID:        s.newID(),
		Title:     title,
		CreatedAt: s.now(),
	}

	if err := s.repo.Add(ctx, task); err != nil {
		if errors.Is(err, repositories.ErrDuplicateTitle) {
			return nil, &ValidationError{Reason: ReasonDuplicateTitle}
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "task created", slog.String("task_id", task.ID.String()))
	s.afterWrite(ctx, models.EventTaskCreated, *task)

	return task, nil
}

// Toggle flips the completion flag and returns the task as storage now holds it.
func (s *TaskService) Toggle(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &NotFoundError{ID: id}
	}

	if err := s.repo.Toggle(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &NotFoundError{ID: id}
	}

	s.logger.InfoContext(ctx, "task toggled",
		slog.String("task_id", id.String()),
		slog.Bool("completed", updated.Completed),
	)
	s.afterWrite(ctx, models.EventTaskToggled, *updated)

	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &NotFoundError{ID: id}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return &NotFoundError{ID: id}
		}
		return err
	}

	s.logger.InfoContext(ctx, "task removed", slog.String("task_id", id.String()))
	s.afterWrite(ctx, models.EventTaskDeleted, *existing)

	return nil
}

// afterWrite runs once the write is committed, so it must not be cut short
// by the request context being cancelled.
func (s *TaskService) afterWrite(ctx context.Context, t models.EventType, task models.Task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterWriteTimeout)
	defer cancel()

	if err := s.cache.DeleteTaskList(ctx); err != nil {
		s.logger.WarnContext(ctx, "task list cache invalidation failed", slog.Any("error", err))
	}

	if err := s.publisher.Publish(ctx, models.NewTaskEvent(t, task, s.now())); err != nil {
		s.logger.WarnContext(ctx, "publish task event failed",
			slog.String("event", string(t)),
			slog.String("task_id", task.ID.String()),
			slog.Any("error", err),
		)
	}
}
