package connector

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// tokenRefreshThreshold mirrors the KIS auth module's one-hour early
// refresh window (original_source's trader-exchange/kis/auth.rs).
const tokenRefreshThreshold = time.Hour

// Token is a bearer credential with an expiry.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// Valid reports whether the token has not yet expired.
func (t Token) Valid() bool { return time.Now().Before(t.ExpiresAt) }

// ExpiringSoon reports whether the token is within the refresh threshold.
func (t Token) ExpiringSoon() bool { return time.Now().Add(tokenRefreshThreshold).After(t.ExpiresAt) }

// AuthHeader renders the "<type> <token>" header value.
func (t Token) AuthHeader() string { return t.TokenType + " " + t.AccessToken }

// RefreshFunc requests a fresh token from the venue.
type RefreshFunc func(ctx context.Context) (Token, error)

// TokenCache is the shared single-writer token cache described in
// spec.md §5's ownership table: many goroutines may call Get concurrently,
// but at most one in-flight refresh call happens at a time — concurrent
// callers that observe an expiring token wait on the same refresh rather
// than issuing duplicate requests.
type TokenCache struct {
	refresh RefreshFunc

	mu      sync.Mutex
	current Token
	have    bool
	inFlight chan struct{} // non-nil while a refresh is in progress
}

// NewTokenCache constructs an empty cache backed by refresh.
func NewTokenCache(refresh RefreshFunc) *TokenCache {
	return &TokenCache{refresh: refresh}
}

// Get returns a valid token, refreshing synchronously if the cached token
// is missing, expired, or within the refresh threshold. Concurrent callers
// during a refresh block on the same underlying request.
func (c *TokenCache) Get(ctx context.Context) (Token, error) {
	c.mu.Lock()
	if c.have && !c.current.ExpiringSoon() {
		tok := c.current
		c.mu.Unlock()
		return tok, nil
	}
	if c.inFlight != nil {
		wait := c.inFlight
		c.mu.Unlock()
		select {
		case <-wait:
			return c.Get(ctx)
		case <-ctx.Done():
			return Token{}, ctx.Err()
		}
	}

	done := make(chan struct{})
	c.inFlight = done
	c.mu.Unlock()

	tok, err := c.refresh(ctx)

	c.mu.Lock()
	if err == nil {
		c.current = tok
		c.have = true
	}
	c.inFlight = nil
	close(done)
	c.mu.Unlock()

	if err != nil {
		return Token{}, fmt.Errorf("token refresh failed: %w", err)
	}
	return tok, nil
}

// SetCached seeds the cache with a previously persisted token (e.g. loaded
// from a database at startup), skipping an unnecessary refresh call.
func (c *TokenCache) SetCached(tok Token) {
	if !tok.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = tok
	c.have = true
}

// Invalidate clears the cached token, forcing the next Get to refresh.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.have = false
}
