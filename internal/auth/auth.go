// Package auth hashes passwords with bcrypt and issues/verifies JWTs for
// the HTTP API, mirroring the original service's Claims{sub, role, iat,
// exp} shape and JWT_MAXAGE-driven expiry.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/OctaHive/octabot/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches the stored bcrypt hash.
func CheckPassword(hash, plaintext string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Claims is the JWT payload issued on login.
type Claims struct {
	Sub  uuid.UUID   `json:"sub"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies JWTs with a shared secret.
type Issuer struct {
	secret []byte
	maxAge time.Duration
}

// NewIssuer builds an Issuer. An empty secret is accepted and signs tokens
// with an empty HMAC key; app.Boot only logs a warning when JWT_SECRET is
// unset.
func NewIssuer(secret string, maxAge time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), maxAge: maxAge}
}

// Issue mints a signed JWT for u.
func (i *Issuer) Issue(u *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:  u.ID,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.maxAge)),
			Subject:   u.ID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates a signed JWT, returning its claims.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
