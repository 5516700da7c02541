package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OctaHive/octabot/internal/domain"
	"github.com/OctaHive/octabot/internal/errs"
)

// GET /api/v1/projects — admins see every project, regular users see only
// the ones they own.
func (h *Handler) ListProjects(c *gin.Context) {
	claims := claimsFrom(c)
	var ownerID *uuid.UUID
	if claims.Role != domain.RoleAdmin {
		ownerID = &claims.Sub
	}
	projects, err := h.store.ListProjects(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list projects failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

type createProjectRequest struct {
	Code    string          `json:"code" binding:"required"`
	Name    string          `json:"name" binding:"required"`
	Options json.RawMessage `json:"options"`
}

// POST /api/v1/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	claims := claimsFrom(c)

	p, err := h.store.CreateProject(c.Request.Context(), domain.Project{
		Code:    req.Code,
		Name:    req.Name,
		OwnerID: claims.Sub,
		Options: req.Options,
	})
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create project failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

type updateProjectRequest struct {
	Name    string          `json:"name" binding:"required"`
	Options json.RawMessage `json:"options"`
}

// PATCH /api/v1/projects/:id
func (h *Handler) UpdateProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if !h.ownsProject(c, id) {
		return
	}

	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	p, err := h.store.UpdateProject(c.Request.Context(), id, req.Name, req.Options)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update project failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// DELETE /api/v1/projects/:id
func (h *Handler) DeleteProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if !h.ownsProject(c, id) {
		return
	}
	if err := h.store.DeleteProject(c.Request.Context(), id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete project failed", "detail": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ownsProject writes a response and returns false when the caller is
// neither the project's owner nor an admin.
func (h *Handler) ownsProject(c *gin.Context, id uuid.UUID) bool {
	claims := claimsFrom(c)
	p, err := h.store.GetProject(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve project failed", "detail": err.Error()})
		return false
	}
	if claims.Role != domain.RoleAdmin && p.OwnerID != claims.Sub {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}
