// Package credentials manages the bearer credential used for all outbound
// calls: issue, cache, proactive refresh with a safety buffer, and explicit
// invalidation after a downstream authorization failure.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/notluquis/bioalergia-sub006/internal/remote"
)

const (
	// safetyBuffer is subtracted from the credential expiry when deciding
	// whether the cached value is still usable.
	safetyBuffer = 5 * time.Minute

	// defaultTTL applies when the identity endpoint omits expires_in.
	defaultTTL = time.Hour
)

// Credential is a bearer token with its issue and expiry instants. It is
// owned exclusively by the Store and replaced wholesale on refresh.
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// valid reports whether the credential can still back a request at t.
func (c *Credential) valid(t time.Time) bool {
	return c != nil && c.Token != "" && t.Before(c.ExpiresAt)
}

// fresh reports whether the credential is outside the refresh window at t.
func (c *Credential) fresh(t time.Time) bool {
	return c != nil && c.Token != "" && t.Before(c.ExpiresAt.Add(-safetyBuffer))
}

// Config holds the identity endpoint settings.
type Config struct {
	// TokenURL is the fixed OAuth-style token endpoint.
	TokenURL string

	// ClientID identifies this application to the identity endpoint.
	ClientID string

	// Username and Password are the configured secret pair exchanged for a
	// bearer credential.
	Username string
	Password string
}

// exchangeFunc performs one credential issue against the identity endpoint.
// Injected in tests.
type exchangeFunc func(ctx context.Context) (*Credential, error)

// Store caches the last-issued credential and refreshes it on demand.
// Concurrent refreshes are collapsed into a single identity-endpoint call.
type Store struct {
	mu       sync.RWMutex
	current  *Credential
	group    singleflight.Group
	exchange exchangeFunc
	now      func() time.Time
}

// NewStore creates a credential store backed by an OAuth password-credential
// exchange against cfg.TokenURL.
func NewStore(cfg Config) *Store {
	oc := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	s := &Store{now: time.Now}
	s.exchange = func(ctx context.Context) (*Credential, error) {
		tok, err := oc.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) {
				return nil, &remote.AuthError{
					Status:  re.Response.StatusCode,
					Message: re.ErrorDescription,
				}
			}
			return nil, &remote.TransportError{Err: fmt.Errorf("identity exchange: %w", err)}
		}
		if tok.AccessToken == "" {
			return nil, &remote.AuthError{Message: "identity response missing access token"}
		}
		issued := s.now()
		expires := tok.Expiry
		if expires.IsZero() {
			expires = issued.Add(defaultTTL)
		}
		return &Credential{Token: tok.AccessToken, IssuedAt: issued, ExpiresAt: expires}, nil
	}
	return s
}

// Get returns a usable credential, refreshing when the cached one is inside
// the safety buffer. A failed refresh never evicts a stale-but-valid cached
// credential.
func (s *Store) Get(ctx context.Context) (Credential, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()

	if cur.fresh(s.now()) {
		return *cur, nil
	}

	// Serialize refresh so concurrent callers share one identity call.
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return Credential{}, err
	}
	return *(v.(*Credential)), nil
}

func (s *Store) refresh(ctx context.Context) (*Credential, error) {
	// Re-check under the flight: another caller may have refreshed while we
	// waited on the group.
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if cur.fresh(s.now()) {
		return cur, nil
	}

	issued, err := s.exchange(ctx)
	if err != nil {
		// Stale-but-valid credentials survive a failed refresh attempt.
		if cur.valid(s.now()) {
			slog.Warn("Credential refresh failed, reusing still-valid credential",
				"expires_at", cur.ExpiresAt,
				"error", err)
			return cur, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.current = issued
	s.mu.Unlock()

	slog.Info("Credential refreshed",
		"issued_at", issued.IssuedAt,
		"expires_at", issued.ExpiresAt)
	return issued, nil
}

// Token returns a usable bearer token. Convenience for callers that do not
// care about the credential lifecycle fields.
func (s *Store) Token(ctx context.Context) (string, error) {
	cred, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// Invalidate discards the cached credential. Called after a request using it
// came back with an authorization failure, forcing re-issue on the next Get.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
