package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS tasks (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	createTitleIndexQuery = `CREATE UNIQUE INDEX IF NOT EXISTS tasks_title_lower_key ON tasks (lower(title))`

	listQuery    = `SELECT id, title, completed, created_at FROM tasks ORDER BY created_at DESC, id DESC`
	getByIDQuery = `SELECT id, title, completed, created_at FROM tasks WHERE id = $1`
	existsQuery  = `SELECT EXISTS (SELECT 1 FROM tasks WHERE lower(title) = lower($1))`
	insertQuery  = `INSERT INTO tasks (id, title, completed, created_at) VALUES ($1, $2, $3, $4)`
	toggleQuery  = `UPDATE tasks SET completed = NOT completed WHERE id = $1`
	deleteQuery  = `DELETE FROM tasks WHERE id = $1`
)

// OpenDB opens a connection pool with either the lib/pq ("postgres") or
// the pgx ("pgx") driver and checks it is reachable.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type PostgresTaskRepo struct {
	db *sql.DB
}

func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Migrate creates the tasks table and the case-insensitive title index.
func (r *PostgresTaskRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createTitleIndexQuery); err != nil {
		return fmt.Errorf("create title index: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresTaskRepo) List(ctx context.Context) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *PostgresTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var t models.Task
	err := r.db.QueryRowContext(ctx, getByIDQuery, id).Scan(&t.ID, &t.Title, &t.Completed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

func (r *PostgresTaskRepo) ExistsByTitle(ctx context.Context, title string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, existsQuery, strings.TrimSpace(title)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return exists, nil
}

func (r *PostgresTaskRepo) Add(ctx context.Context, task *models.Task) error {
	_, err := r.db.ExecContext(ctx, insertQuery, task.ID, task.Title, task.Completed, task.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTitle
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *PostgresTaskRepo) Toggle(ctx context.Context, id uuid.UUID) error {
	return r.execByID(ctx, toggleQuery, id)
}

func (r *PostgresTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.execByID(ctx, deleteQuery, id)
}

func (r *PostgresTaskRepo) execByID(ctx context.Context, query string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
