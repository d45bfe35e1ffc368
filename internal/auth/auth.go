// Package auth resolves the identity behind a websocket connection. Identity
// is owned by an external service; the server only asks it who a token
// belongs to.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the identity service could not answer.
	ErrUnavailable = errors.New("auth: unavailable")
)

// DefaultTimeout bounds a single validation call
const DefaultTimeout = 500 * time.Millisecond

// Identity is the user a token belongs to
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Validator resolves tokens to identities.
type Validator interface {
	// Validate returns:
	//   - (*Identity, nil) if the token is valid
	//   - (nil, ErrInvalidToken) if it is definitively invalid
	//   - (nil, ErrUnavailable) if the service could not be reached
	//   - (nil, nil) when validation is disabled and the claimed name is trusted
	Validate(ctx context.Context, token string) (*Identity, error)
}

// HTTPValidator posts tokens to an external identity endpoint
type HTTPValidator struct {
	url     string
	secret  string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPValidator creates a validator for url. secret, when set, is sent
// as X-Service-Secret so the endpoint can reject other callers.
func NewHTTPValidator(url, secret string, timeout time.Duration) *HTTPValidator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPValidator{
		url:     url,
		secret:  secret,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.secret != "" {
		req.Header.Set("X-Service-Secret", v.secret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	if !out.Valid || out.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: out.UserID, Name: out.Name}, nil
}

// NoopValidator trusts whatever name the client claims (dev mode)
type NoopValidator struct{}

func NewNoopValidator() *NoopValidator { return &NoopValidator{} }

func (NoopValidator) Validate(context.Context, string) (*Identity, error) { return nil, nil }

// StaticValidator maps fixed tokens to identities, for tests and demos
type StaticValidator map[string]Identity

func (s StaticValidator) Validate(_ context.Context, token string) (*Identity, error) {
	id, ok := s[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &id, nil
}
