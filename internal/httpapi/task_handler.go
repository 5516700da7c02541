package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OctaHive/octabot/internal/clock"
	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/errs"
)

// GET /api/v1/tasks?project_id=&status=&kind=&limit=&offset=
func (h *Handler) ListTasks(c *gin.Context) {
	var filter domain.TaskFilter
	if v := c.Query("project_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		filter.ProjectID = &id
	}
	if v := c.Query("status"); v != "" {
		status := domain.Status(v)
		filter.Status = &status
	}
	if v := c.Query("kind"); v != "" {
		filter.Kind = &v
	}
	filter.Limit = queryInt(c, "limit", 50)
	filter.Offset = queryInt(c, "offset", 0)

	tasks, err := h.store.ListTasks(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tasks failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GET /api/v1/tasks/:id
func (h *Handler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.store.GetTask(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get task failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

type createTaskRequest struct {
	Name      string          `json:"name" binding:"required"`
	Kind      string          `json:"kind" binding:"required"`
	ProjectID string          `json:"project_id" binding:"required"`
	Schedule  string          `json:"schedule"`
	StartAt   *int64          `json:"start_at"`
	Options   json.RawMessage `json:"options"`
}

// POST /api/v1/tasks — creates an immediate or scheduled task. If schedule
// is set, start_at is optional and defaults to the schedule's first fire.
func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
		return
	}

	var schedule *string
	startAt := time.Now().UTC()
	if req.Schedule != "" {
		if err := clock.ValidateCron(req.Schedule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule", "detail": err.Error()})
			return
		}
		schedule = &req.Schedule
		next, err := clock.NextFire(req.Schedule, startAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule", "detail": err.Error()})
			return
		}
		startAt = next
	}
	if req.StartAt != nil {
		startAt = time.Unix(*req.StartAt, 0).UTC()
	}
	t, err := h.store.UpsertTask(c.Request.Context(), domain.TaskSpec{
		Name:      req.Name,
		Kind:      req.Kind,
		ProjectID: projectID,
		Schedule:  schedule,
		StartAt:   startAt,
		Options:   req.Options,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create task failed", "detail": err.Error()})
		return
	}
	h.sched.Wake()
	c.JSON(http.StatusCreated, t)
}

// DELETE /api/v1/tasks/:id
func (h *Handler) DeleteTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.store.DeleteTask(c.Request.Context(), id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete task failed", "detail": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
