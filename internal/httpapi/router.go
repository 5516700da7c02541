// Package httpapi is the HTTP API surface: auth, users, projects and
// tasks CRUD over gin, plus a websocket feed of task status changes,
// following the teacher's Handler-struct-plus-gin.H-response style.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OctaHive/octabot/internal/auth"
	"github.com/OctaHive/octabot/internal/logging"
	"github.com/OctaHive/octabot/internal/scheduler"
	"github.com/OctaHive/octabot/internal/store"
)

// Handler bundles every dependency the API surface needs.
type Handler struct {
	store *store.Store
	sched *scheduler.Scheduler
	auth  *auth.Issuer
	log   *logging.Logger
	hub   *Hub
}

// New builds a Handler, starts its websocket hub's fan-out loop, and
// subscribes it to the scheduler's task lifecycle events.
func New(st *store.Store, sched *scheduler.Scheduler, issuer *auth.Issuer, log *logging.Logger) *Handler {
	h := &Handler{store: st, sched: sched, auth: issuer, log: log, hub: newHub()}
	go h.hub.run()
	sched.OnStatusChange(func(taskID, kind, status string) {
		h.hub.Broadcast(TaskEvent{TaskID: taskID, Kind: kind, Status: status, At: time.Now().Unix()})
	})
	return h
}

// Router assembles the gin engine with every route from §4.8.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", h.Login)

		users := v1.Group("/users", h.requireAuth(), h.requireRole("admin"))
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.PATCH("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)

		projects := v1.Group("/projects", h.requireAuth())
		projects.GET("", h.ListProjects)
		projects.POST("", h.CreateProject)
		projects.PATCH("/:id", h.UpdateProject)
		projects.DELETE("/:id", h.DeleteProject)

		tasks := v1.Group("/tasks", h.requireAuth())
		tasks.GET("", h.ListTasks)
		tasks.GET("/:id", h.GetTask)
		tasks.POST("", h.CreateTask)
		tasks.DELETE("/:id", h.DeleteTask)

		v1.GET("/ws", h.requireAuth(), h.Websocket)
	}

	return r
}

// requestLogger mirrors the teacher's structured-access-log middleware,
// adapted to the project's own Logger.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Readyz(c *gin.Context) {
	if err := h.store.Pool().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": "store ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "timestamp": time.Now().UTC()})
}
