package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OctaHive/octabot/internal/auth"
	"github.com/OctaHive/octabot/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(issuer *auth.Issuer) *Handler {
	return &Handler{auth: issuer}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	t.Parallel()
	h := newTestHandler(auth.NewIssuer("secret", time.Hour))
	r := gin.New()
	r.GET("/protected", h.requireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	t.Parallel()
	issuer := auth.NewIssuer("secret", time.Hour)
	h := newTestHandler(issuer)
	r := gin.New()
	r.GET("/protected", h.requireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	token, err := issuer.Issue(&domain.User{ID: uuid.New(), Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireRoleRejectsWrongRole(t *testing.T) {
	t.Parallel()
	issuer := auth.NewIssuer("secret", time.Hour)
	h := newTestHandler(issuer)
	r := gin.New()
	r.GET("/admin-only", h.requireAuth(), h.requireRole("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	token, err := issuer.Issue(&domain.User{ID: uuid.New(), Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
