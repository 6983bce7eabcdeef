package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kalpovskii/tasktracker/internal/app/middleware"
	"github.com/kalpovskii/tasktracker/internal/app/models"
	"github.com/kalpovskii/tasktracker/internal/app/services"
)

type TaskService interface {
	List(ctx context.Context) ([]models.Task, error)
	Create(ctx context.Context, title string) (*models.Task, error)
	Toggle(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type TaskHandler struct {
	service TaskService
	logger  *slog.Logger
}

func NewTaskHandler(service TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{service: service, logger: logger}
}

func (h *TaskHandler) Register(r gin.IRouter) {
	g := r.Group("/api/tasks")
	g.GET("", h.list)
	g.POST("", h.create)
	g.PUT("/:id/toggle", h.toggle)
	g.DELETE("/:id", h.delete)
}

type createTaskRequest struct {
	Title string `json:"title"`
}

func (h *TaskHandler) list(c *gin.Context) {
	tasks, err := h.service.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	task, err := h.service.Create(c.Request.Context(), req.Title)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Location", "/api/tasks/"+task.ID.String())
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) toggle(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task, err := h.service.Toggle(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseID treats a malformed id like an unknown one.
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *TaskHandler) fail(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var notFoundErr *services.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Reason})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	default:
		_ = c.Error(err)
		h.logger.ErrorContext(c.Request.Context(), "task request failed",
			slog.String("rid", middleware.RequestIDFrom(c)),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
