package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/OctaHive/octabot/internal/domain"
)

func TestHashAndCheckPassword(t *testing.T) {
	t.Parallel()
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if err := CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("CheckPassword rejected the correct password: %v", err)
	}
	if err := CheckPassword(hash, "wrong password"); err == nil {
		t.Fatal("CheckPassword accepted an incorrect password")
	}
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()
	issuer := NewIssuer("test-secret", time.Hour)
	u := &domain.User{ID: uuid.New(), Username: "alice", Role: domain.RoleAdmin}

	token, err := issuer.Issue(u)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Sub != u.ID {
		t.Fatalf("claims.Sub = %v, want %v", claims.Sub, u.ID)
	}
	if claims.Role != domain.RoleAdmin {
		t.Fatalf("claims.Role = %v, want %v", claims.Role, domain.RoleAdmin)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	t.Parallel()
	issuer := NewIssuer("secret-a", time.Hour)
	other := NewIssuer("secret-b", time.Hour)
	u := &domain.User{ID: uuid.New(), Role: domain.RoleUser}

	token, err := issuer.Issue(u)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := other.Verify(token); err == nil {
		t.Fatal("expected verification with a different secret to fail")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()
	issuer := NewIssuer("secret", -time.Minute)
	u := &domain.User{ID: uuid.New(), Role: domain.RoleUser}

	token, err := issuer.Issue(u)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("expected an already-expired token to fail verification")
	}
}
