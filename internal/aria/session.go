// Package aria implements the session lifecycle and a typed REST client
// for the VMware Aria Operations suite-api.
package aria

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	authAcquirePath = "/suite-api/api/auth/token/acquire"
	authReleasePath = "/suite-api/api/auth/token/release"

	// authTimeout bounds a single login attempt.
	authTimeout = 30 * time.Second

	// defaultTokenValidity is assumed when the upstream omits the validity
	// field. Aria tokens normally live for six hours.
	defaultTokenValidity = 6 * time.Hour
)

// authHeader returns the Authorization header value for a suite-api token.
func authHeader(token string) string {
	return "vRealizeOpsToken " + token
}

// SessionManager owns the suite-api bearer token. Refreshes are
// single-flighted: concurrent callers waiting on an expired token share one
// login call instead of issuing duplicates.
type SessionManager struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	grace    time.Duration
	logger   *zap.Logger

	sf singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// session is the result shared by single-flighted refreshes.
type session struct {
	token     string
	expiresAt time.Time
}

// NewSessionManager creates a session manager for the given host. The
// returned manager holds no token until Token is first called.
func NewSessionManager(client *http.Client, baseURL, username, password string, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		client:   client,
		baseURL:  baseURL,
		username: username,
		password: password,
		grace:    30 * time.Second,
		logger:   logger,
	}
}

// Token returns a token valid for at least the grace period, logging in
// first if the cached one is absent or about to expire.
func (s *SessionManager) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && time.Until(s.expiresAt) > s.grace {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do("auth", func() (interface{}, error) {
		// Another caller may have refreshed while we queued.
		s.mu.Lock()
		if s.token != "" && time.Until(s.expiresAt) > s.grace {
			cached := session{token: s.token, expiresAt: s.expiresAt}
			s.mu.Unlock()
			return cached, nil
		}
		s.mu.Unlock()

		sess, err := s.authenticate(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.token = sess.token
		s.expiresAt = sess.expiresAt
		s.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return "", err
	}
	return v.(session).token, nil
}

// Invalidate drops the cached token if it matches the given one, forcing
// the next Token call to log in again. Passing a stale token is a no-op so
// a racing caller cannot discard a token that was already refreshed.
func (s *SessionManager) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.token = ""
		s.expiresAt = time.Time{}
	}
}

// authenticate performs one login call against the token acquire endpoint.
func (s *SessionManager) authenticate(ctx context.Context) (session, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	body, err := json.Marshal(authRequest{Username: s.username, Password: s.password})
	if err != nil {
		return session{}, &AuthError{Reason: "encoding credentials", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+authAcquirePath, bytes.NewReader(body))
	if err != nil {
		return session{}, &AuthError{Reason: "building login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return session{}, &AuthError{Reason: "auth endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return session{}, &AuthError{Reason: fmt.Sprintf("login returned status %d", resp.StatusCode)}
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return session{}, &AuthError{Reason: "decoding login response", Err: err}
	}
	if auth.Token == "" {
		return session{}, &AuthError{Reason: "no token in login response"}
	}

	expiresAt := time.Now().Add(defaultTokenValidity)
	if auth.Validity > 0 {
		expiresAt = time.UnixMilli(auth.Validity)
	}

	s.logger.Info("Authenticated with Aria Operations",
		zap.Time("token_expires", expiresAt))

	return session{token: auth.Token, expiresAt: expiresAt}, nil
}

// Release invalidates the upstream token on shutdown. Best effort: a
// failure is logged and otherwise ignored.
func (s *SessionManager) Release(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+authReleasePath, nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", authHeader(token))

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("Token release failed", zap.Error(err))
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
