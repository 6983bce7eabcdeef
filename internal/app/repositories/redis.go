package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/redis/go-redis/v9"
)

// TaskCache holds the most recent result of a full task listing.
// GetTaskList returns (nil, nil) on a cache miss.
//
// Every DeleteTaskList bumps the list version. SetTaskList stores the list
// only if the version still equals the one read before storage was queried,
// so a listing taken before a write never outlives that write.
type TaskCache interface {
	GetTaskList(ctx context.Context) ([]models.Task, error)
	TaskListVersion(ctx context.Context) (int64, error)
	SetTaskList(ctx context.Context, tasks []models.Task, version int64, ttl time.Duration) error
	DeleteTaskList(ctx context.Context) error
}

const (
	taskListKey        = "tasks:list"
	taskListVersionKey = "tasks:list:version"
)

type RedisTaskCache struct {
	rdb *redis.Client
}

func NewRedisTaskCache(rdb *redis.Client) *RedisTaskCache {
	return &RedisTaskCache{rdb: rdb}
}

func (r *RedisTaskCache) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisTaskCache) GetTaskList(ctx context.Context) ([]models.Task, error) {
	val, err := r.rdb.Get(ctx, taskListKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := json.Unmarshal(val, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *RedisTaskCache) TaskListVersion(ctx context.Context) (int64, error) {
	return taskListVersion(ctx, r.rdb)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func taskListVersion(ctx context.Context, c stringGetter) (int64, error) {
	v, err := c.Get(ctx, taskListVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// SetTaskList is a no-op when the list was invalidated after version was read.
func (r *RedisTaskCache) SetTaskList(ctx context.Context, tasks []models.Task, version int64, ttl time.Duration) error {
	if tasks == nil {
		tasks = []models.Task{}
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return err
	}

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := taskListVersion(ctx, tx)
		if err != nil {
			return err
		}
		if current != version {
			return nil // stale
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, taskListKey, data, ttl)
			return nil
		})
		return err
	}, taskListVersionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil // invalidated while filling
	}
	return err
}

func (r *RedisTaskCache) DeleteTaskList(ctx context.Context) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, taskListVersionKey)
		pipe.Del(ctx, taskListKey)
		return nil
	})
	return err
}

// NopTaskCache is used when no redis instance is configured; every read is a miss.
type NopTaskCache struct{}

func (NopTaskCache) GetTaskList(context.Context) ([]models.Task, error) { return nil, nil }

func (NopTaskCache) TaskListVersion(context.Context) (int64, error) { return 0, nil }

func (NopTaskCache) SetTaskList(context.Context, []models.Task, int64, time.Duration) error { return nil }

func (NopTaskCache) DeleteTaskList(context.Context) error { return nil }
