package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/kalpovskii/tasktracker/internal/app/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTaskRepository struct {
	listFn    func(ctx context.Context) ([]models.Task, error)
	getByIDFn func(ctx context.Context, id uuid.UUID) (*models.Task, error)
	existsFn  func(ctx context.Context, title string) (bool, error)
	addFn     func(ctx context.Context, task *models.Task) error
	toggleFn  func(ctx context.Context, id uuid.UUID) error
	deleteFn  func(ctx context.Context, id uuid.UUID) error

	listCalls, getCalls, existsCalls, addCalls, toggleCalls, deleteCalls int
}

func (m *mockTaskRepository) List(ctx context.Context) ([]models.Task, error) {
	m.listCalls++
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []models.Task{}, nil
}

func (m *mockTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	m.getCalls++
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTaskRepository) ExistsByTitle(ctx context.Context, title string) (bool, error) {
	m.existsCalls++
	if m.existsFn != nil {
		return m.existsFn(ctx, title)
	}
	return false, nil
}

func (m *mockTaskRepository) Add(ctx context.Context, task *models.Task) error {
	m.addCalls++
	if m.addFn != nil {
		return m.addFn(ctx, task)
	}
	return nil
}

func (m *mockTaskRepository) Toggle(ctx context.Context, id uuid.UUID) error {
	m.toggleCalls++
	if m.toggleFn != nil {
		return m.toggleFn(ctx, id)
	}
	return nil
}

func (m *mockTaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.deleteCalls++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockTaskCache struct {
	getTaskListFn    func(ctx context.Context) ([]models.Task, error)
	versionFn        func(ctx context.Context) (int64, error)
	setTaskListFn    func(ctx context.Context, tasks []models.Task, version int64, ttl time.Duration) error
	deleteTaskListFn func(ctx context.Context) error

	setCalls, deleteCalls int
	lastTTL               time.Duration
	lastVersion           int64
}

func (m *mockTaskCache) GetTaskList(ctx context.Context) ([]models.Task, error) {
	if m.getTaskListFn != nil {
		return m.getTaskListFn(ctx)
	}
	return nil, nil
}

func (m *mockTaskCache) TaskListVersion(ctx context.Context) (int64, error) {
	if m.versionFn != nil {
		return m.versionFn(ctx)
	}
	return 0, nil
}

func (m *mockTaskCache) SetTaskList(ctx context.Context, tasks []models.Task, version int64, ttl time.Duration) error {
	m.setCalls++
	m.lastTTL = ttl
	m.lastVersion = version
	if m.setTaskListFn != nil {
		return m.setTaskListFn(ctx, tasks, version, ttl)
	}
	return nil
}

func (m *mockTaskCache) DeleteTaskList(ctx context.Context) error {
	m.deleteCalls++
	if m.deleteTaskListFn != nil {
		return m.deleteTaskListFn(ctx)
	}
	return nil
}

type recordingPublisher struct {
	events []models.TaskEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event models.TaskEvent) error {
	p.events = append(p.events, event)
	return p.err
}

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo repositories.TaskRepository, opts ...Option) *TaskService {
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s := NewTaskService(repo, opts...)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestTaskService_Create(t *testing.T) {
	t.Run("valid title is trimmed and stored", func(t *testing.T) {
		id := uuid.New()
		var stored *models.Task

		repo := &mockTaskRepository{
			addFn: func(_ context.Context, task *models.Task) error {
				stored = task
				return nil
			},
		}
		cache := &mockTaskCache{}
		pub := &recordingPublisher{}

		s := newTestService(repo, WithCache(cache, 0), WithPublisher(pub))
		s.newID = func() uuid.UUID { return id }

		task, err := s.Create(context.Background(), "  New Task  ")
		require.NoError(t, err)
		require.NotNil(t, task)

		assert.Equal(t, id, task.ID)
		assert.Equal(t, "New Task", task.Title)
		assert.False(t, task.Completed)
		assert.Equal(t, fixedNow, task.CreatedAt)
		assert.Equal(t, 1, repo.addCalls)
		assert.Equal(t, task, stored)

		assert.Equal(t, 1, cache.deleteCalls)
		require.Len(t, pub.events, 1)
		assert.Equal(t, models.EventTaskCreated, pub.events[0].Type)
		assert.Equal(t, id, pub.events[0].TaskID)
	})

	for _, title := range []string{"", "   ", "\t\n"} {
		t.Run("blank title "+strconv.Quote(title), func(t *testing.T) {
			repo := &mockTaskRepository{}
			s := newTestService(repo)

			task, err := s.Create(context.Background(), title)
			assert.Nil(t, task)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, ReasonTitleRequired, verr.Reason)
			assert.Zero(t, repo.addCalls)
			assert.Zero(t, repo.existsCalls)
		})
	}

	t.Run("duplicate title", func(t *testing.T) {
		repo := &mockTaskRepository{
			existsFn: func(_ context.Context, title string) (bool, error) {
				assert.Equal(t, "Duplicate", title)
				return true, nil
			},
		}
		pub := &recordingPublisher{}
		s := newTestService(repo, WithPublisher(pub))

		_, err := s.Create(context.Background(), " Duplicate ")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ReasonDuplicateTitle, verr.Reason)
		assert.Zero(t, repo.addCalls)
		assert.Empty(t, pub.events)
	})

	t.Run("duplicate detected by storage on insert", func(t *testing.T) {
		repo := &mockTaskRepository{
			addFn: func(context.Context, *models.Task) error {
				return repositories.ErrDuplicateTitle
			},
		}
		s := newTestService(repo)

		_, err := s.Create(context.Background(), "Race")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ReasonDuplicateTitle, verr.Reason)
	})

	t.Run("storage fault is not classified", func(t *testing.T) {
		dbErr := errors.New("connection refused")
		repo := &mockTaskRepository{
			addFn: func(context.Context, *models.Task) error { return dbErr },
		}
		cache := &mockTaskCache{}
		s := newTestService(repo, WithCache(cache, 0))

		task, err := s.Create(context.Background(), "Task")
		assert.Nil(t, task)
		assert.ErrorIs(t, err, dbErr)

		var verr *ValidationError
		assert.False(t, errors.As(err, &verr))
		assert.Zero(t, cache.deleteCalls)
	})

	t.Run("exists check fault", func(t *testing.T) {
		dbErr := errors.New("timeout")
		repo := &mockTaskRepository{
			existsFn: func(context.Context, string) (bool, error) { return false, dbErr },
		}
		s := newTestService(repo)

		_, err := s.Create(context.Background(), "Task")
		assert.ErrorIs(t, err, dbErr)
		assert.Zero(t, repo.addCalls)
	})

	t.Run("publish failure does not fail create", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("broker down")}
		s := newTestService(&mockTaskRepository{}, WithPublisher(pub))

		task, err := s.Create(context.Background(), "Task")
		require.NoError(t, err)
		assert.Equal(t, "Task", task.Title)
		assert.Len(t, pub.events, 1)
	})
}

func TestTaskService_Toggle(t *testing.T) {
	t.Run("returns the re-read task", func(t *testing.T) {
		id := uuid.New()
		existing := &models.Task{ID: id, Title: "Test", Completed: false}
		// storage may normalize what it holds; the service must return that
		toggled := &models.Task{ID: id, Title: "test", Completed: true}

		reads := []*models.Task{existing, toggled}
		repo := &mockTaskRepository{
			getByIDFn: func(_ context.Context, got uuid.UUID) (*models.Task, error) {
				assert.Equal(t, id, got)
				next := reads[0]
				reads = reads[1:]
				return next, nil
			},
		}
		cache := &mockTaskCache{}
		pub := &recordingPublisher{}
		s := newTestService(repo, WithCache(cache, 0), WithPublisher(pub))

		task, err := s.Toggle(context.Background(), id)
		require.NoError(t, err)

		assert.Equal(t, toggled, task)
		assert.Equal(t, 1, repo.toggleCalls)
		assert.Equal(t, 2, repo.getCalls)
		assert.Equal(t, 1, cache.deleteCalls)
		require.Len(t, pub.events, 1)
		assert.Equal(t, models.EventTaskToggled, pub.events[0].Type)
		assert.True(t, pub.events[0].Completed)
	})

	t.Run("unknown id", func(t *testing.T) {
		id := uuid.New()
		repo := &mockTaskRepository{}
		s := newTestService(repo)

		task, err := s.Toggle(context.Background(), id)
		assert.Nil(t, task)

		var nerr *NotFoundError
		require.ErrorAs(t, err, &nerr)
		assert.Equal(t, id, nerr.ID)
		assert.Zero(t, repo.toggleCalls)
	})

	t.Run("removed between read and update", func(t *testing.T) {
		id := uuid.New()
		repo := &mockTaskRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*models.Task, error) {
				return &models.Task{ID: id, Title: "gone"}, nil
			},
			toggleFn: func(context.Context, uuid.UUID) error { return repositories.ErrNotFound },
		}
		s := newTestService(repo)

		_, err := s.Toggle(context.Background(), id)

		var nerr *NotFoundError
		assert.ErrorAs(t, err, &nerr)
	})

	t.Run("lookup fault", func(t *testing.T) {
		dbErr := errors.New("db down")
		repo := &mockTaskRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*models.Task, error) { return nil, dbErr },
		}
		s := newTestService(repo)

		_, err := s.Toggle(context.Background(), uuid.New())
		assert.ErrorIs(t, err, dbErr)
		assert.Zero(t, repo.toggleCalls)
	})
}

func TestTaskService_Delete(t *testing.T) {
	t.Run("existing task", func(t *testing.T) {
		id := uuid.New()
		repo := &mockTaskRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*models.Task, error) {
				return &models.Task{ID: id, Title: "Test"}, nil
			},
			deleteFn: func(_ context.Context, got uuid.UUID) error {
				assert.Equal(t, id, got)
				return nil
			},
		}
		cache := &mockTaskCache{}
		pub := &recordingPublisher{}
		s := newTestService(repo, WithCache(cache, 0), WithPublisher(pub))

		require.NoError(t, s.Delete(context.Background(), id))
		assert.Equal(t, 1, repo.deleteCalls)
		assert.Equal(t, 1, cache.deleteCalls)
		require.Len(t, pub.events, 1)
		assert.Equal(t, models.EventTaskDeleted, pub.events[0].Type)
	})

	t.Run("unknown id", func(t *testing.T) {
		repo := &mockTaskRepository{}
		s := newTestService(repo)

		err := s.Delete(context.Background(), uuid.New())

		var nerr *NotFoundError
		require.ErrorAs(t, err, &nerr)
		assert.Zero(t, repo.deleteCalls)
	})

	t.Run("storage fault", func(t *testing.T) {
		dbErr := errors.New("disk full")
		repo := &mockTaskRepository{
			getByIDFn: func(context.Context, uuid.UUID) (*models.Task, error) {
				return &models.Task{}, nil
			},
			deleteFn: func(context.Context, uuid.UUID) error { return dbErr },
		}
		s := newTestService(repo)

		assert.ErrorIs(t, s.Delete(context.Background(), uuid.New()), dbErr)
	})
}

func TestTaskService_List(t *testing.T) {
	t.Run("cache hit skips storage", func(t *testing.T) {
		cached := []models.Task{{ID: uuid.New(), Title: "cached"}}
		repo := &mockTaskRepository{}
		cache := &mockTaskCache{
			getTaskListFn: func(context.Context) ([]models.Task, error) { return cached, nil },
		}
		s := newTestService(repo, WithCache(cache, time.Minute))

		tasks, err := s.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, cached, tasks)
		assert.Zero(t, repo.listCalls)
	})

	t.Run("cache miss fills cache", func(t *testing.T) {
		stored := []models.Task{{ID: uuid.New(), Title: "One"}, {ID: uuid.New(), Title: "Two"}}
		repo := &mockTaskRepository{
			listFn: func(context.Context) ([]models.Task, error) { return stored, nil },
		}
		cache := &mockTaskCache{
			versionFn: func(context.Context) (int64, error) { return 7, nil },
		}
		s := newTestService(repo, WithCache(cache, time.Minute))

		tasks, err := s.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, tasks, 2)
		assert.Equal(t, 1, cache.setCalls)
		assert.Equal(t, time.Minute, cache.lastTTL)
		assert.Equal(t, int64(7), cache.lastVersion)
	})

	t.Run("unknown version skips fill", func(t *testing.T) {
		repo := &mockTaskRepository{}
		cache := &mockTaskCache{
			versionFn: func(context.Context) (int64, error) { return 0, errors.New("redis down") },
		}
		s := newTestService(repo, WithCache(cache, 0))

		_, err := s.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, repo.listCalls)
		assert.Zero(t, cache.setCalls)
	})

	t.Run("cache faults fall back to storage", func(t *testing.T) {
		repo := &mockTaskRepository{
			listFn: func(context.Context) ([]models.Task, error) {
				return []models.Task{{Title: "One"}}, nil
			},
		}
		cache := &mockTaskCache{
			getTaskListFn: func(context.Context) ([]models.Task, error) { return nil, errors.New("redis down") },
			setTaskListFn: func(context.Context, []models.Task, int64, time.Duration) error { return errors.New("redis down") },
		}
		s := newTestService(repo, WithCache(cache, 0))

		tasks, err := s.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
		assert.Equal(t, DefaultListTTL, cache.lastTTL)
	})

	t.Run("storage fault propagates", func(t *testing.T) {
		dbErr := errors.New("db down")
		repo := &mockTaskRepository{
			listFn: func(context.Context) ([]models.Task, error) { return nil, dbErr },
		}
		cache := &mockTaskCache{}
		s := newTestService(repo, WithCache(cache, 0))

		tasks, err := s.List(context.Background())
		assert.Nil(t, tasks)
		assert.ErrorIs(t, err, dbErr)
		assert.Zero(t, cache.setCalls)
	})
}

func TestTaskService_MemoryScenario(t *testing.T) {
	ctx := context.Background()
	s := NewTaskService(repositories.NewMemoryTaskRepo(), WithLogger(discardLogger()))

	created, err := s.Create(ctx, "Buy milk")
	require.NoError(t, err)

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)
	assert.False(t, tasks[0].Completed)

	_, err = s.Create(ctx, "  BUY MILK ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonDuplicateTitle, verr.Reason)

	toggled, err := s.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	again, err := s.Toggle(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, again.Completed)

	require.NoError(t, s.Delete(ctx, created.ID))

	tasks, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	var nerr *NotFoundError
	assert.ErrorAs(t, s.Delete(ctx, created.ID), &nerr)
	_, err = s.Toggle(ctx, created.ID)
	assert.ErrorAs(t, err, &nerr)
}

func TestTaskService_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewTaskService(repositories.NewMemoryTaskRepo(), WithLogger(discardLogger()))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Create(ctx, title)
		require.NoError(t, err)
	}

	tasks, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "third", tasks[0].Title)
	assert.Equal(t, "second", tasks[1].Title)
	assert.Equal(t, "first", tasks[2].Title)
}
