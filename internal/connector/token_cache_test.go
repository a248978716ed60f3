package connector

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenCacheRefreshesOnlyOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int64
	cache := NewTokenCache(func(ctx context.Context) (Token, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return Token{AccessToken: "tok", TokenType: "Bearer", ExpiresAt: time.Now().Add(2 * time.Hour)}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("refresh called %d times, want 1", calls.Load())
	}
}

func TestTokenCacheRefreshesWhenExpiringSoon(t *testing.T) {
	var calls atomic.Int64
	cache := NewTokenCache(func(ctx context.Context) (Token, error) {
		n := calls.Add(1)
		if n == 1 {
			return Token{AccessToken: "soon", TokenType: "Bearer", ExpiresAt: time.Now().Add(30 * time.Minute)}, nil
		}
		return Token{AccessToken: "fresh", TokenType: "Bearer", ExpiresAt: time.Now().Add(2 * time.Hour)}, nil
	})

	first, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.AccessToken != "soon" {
		t.Fatalf("access_token = %q, want soon", first.AccessToken)
	}

	second, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.AccessToken != "fresh" {
		t.Fatalf("expected a refresh since the first token was within the threshold, got %q", second.AccessToken)
	}
	if calls.Load() != 2 {
		t.Fatalf("refresh called %d times, want 2", calls.Load())
	}
}

func TestTokenCacheSetCachedSkipsRefresh(t *testing.T) {
	var calls atomic.Int64
	cache := NewTokenCache(func(ctx context.Context) (Token, error) {
		calls.Add(1)
		return Token{AccessToken: "new", TokenType: "Bearer", ExpiresAt: time.Now().Add(2 * time.Hour)}, nil
	})
	cache.SetCached(Token{AccessToken: "cached", TokenType: "Bearer", ExpiresAt: time.Now().Add(2 * time.Hour)})

	tok, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "cached" {
		t.Fatalf("access_token = %q, want cached", tok.AccessToken)
	}
	if calls.Load() != 0 {
		t.Fatal("expected no refresh call when a valid cached token was seeded")
	}
}
