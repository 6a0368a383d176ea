package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/defispring/allocation-merkle-go/pkg/config"
)

// AdminAudience is the audience every admin token must carry.
const AdminAudience = "allocation-admin"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid admin token")
)

// AdminAuth verifies HS256 tokens for the admin endpoints.
type AdminAuth struct {
	secret []byte
}

func NewAdminAuth(secret []byte) (*AdminAuth, error) {
	if len(secret) < config.MinAdminSecretLength {
		return nil, fmt.Errorf("admin secret must be at least %d bytes", config.MinAdminSecretLength)
	}
	return &AdminAuth{secret: slices.Clone(secret)}, nil
}

// Verify checks signature, expiry and audience, and returns the subject.
func (a *AdminAuth) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), a.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	audiences, ok := token.Audience()
	if !ok || !slices.Contains(audiences, AdminAudience) {
		return "", fmt.Errorf("%w: audience must include %s", ErrInvalidToken, AdminAudience)
	}

	subject, _ := token.Subject()
	return subject, nil
}

// VerifyRequest extracts and verifies the Authorization bearer token.
func (a *AdminAuth) VerifyRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return "", ErrMissingToken
	}
	return a.Verify(strings.TrimSpace(tokenString))
}

// NewAdminToken issues an admin token for subject that expires after ttl.
func NewAdminToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) < config.MinAdminSecretLength {
		return "", fmt.Errorf("admin secret must be at least %d bytes", config.MinAdminSecretLength)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}

	now := time.Now()
	token, err := jwt.NewBuilder().
		Subject(subject).
		Audience([]string{AdminAudience}).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}
