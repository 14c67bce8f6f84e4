package momo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenSource yields a bearer token for one logical provider operation.
// Callers must not assume anything about token lifetime; caching is an
// internal optimization of the source.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FetchFunc performs one token exchange against the provider.
type FetchFunc func(ctx context.Context) (Token, error)

// freshTokenSource fetches a new token on every call. This is the reference
// behavior when no cache is wired in.
type freshTokenSource struct {
	fetch FetchFunc
}

func (s *freshTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// CachedTokenSource refreshes only when the held token is within margin of
// its expiry. Safe for concurrent use.
type CachedTokenSource struct {
	fetch  FetchFunc
	margin time.Duration

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewCachedTokenSource wraps fetch with an expiry-aware in-memory cache.
func NewCachedTokenSource(fetch FetchFunc, margin time.Duration) *CachedTokenSource {
	if margin <= 0 {
		margin = 30 * time.Second
	}
	return &CachedTokenSource{fetch: fetch, margin: margin}
}

// Token returns the cached bearer token, refreshing it when expired.
func (s *CachedTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry) {
		return s.token, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.token = tok.AccessToken
	s.expiry = time.Now().Add(tok.TTL() - s.margin)
	return s.token, nil
}

// RedisTokenCache shares one short-lived provider token between service
// instances. The redis TTL mirrors the token expiry minus the margin, so a
// hit is always a usable token.
type RedisTokenCache struct {
	client *redis.Client
	fetch  FetchFunc
	key    string
	margin time.Duration
}

// NewRedisTokenCache returns a redis-backed token source.
func NewRedisTokenCache(client *redis.Client, fetch FetchFunc, margin time.Duration) *RedisTokenCache {
	if margin <= 0 {
		margin = 30 * time.Second
	}
	return &RedisTokenCache{
		client: client,
		fetch:  fetch,
		key:    "momo:collection:token",
		margin: margin,
	}
}

// Token returns the shared bearer token, fetching and publishing a fresh one
// on cache miss. Redis read failures fall through to a direct fetch.
func (c *RedisTokenCache) Token(ctx context.Context) (string, error) {
	cached, err := c.client.Get(ctx, c.key).Result()
	if err == nil && cached != "" {
		return cached, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return c.fetchDirect(ctx)
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	ttl := tok.TTL() - c.margin
	if ttl > 0 {
		if err := c.client.Set(ctx, c.key, tok.AccessToken, ttl).Err(); err != nil {
			return tok.AccessToken, nil
		}
	}
	return tok.AccessToken, nil
}

func (c *RedisTokenCache) fetchDirect(ctx context.Context) (string, error) {
	tok, err := c.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("momo: token fetch after cache failure: %w", err)
	}
	return tok.AccessToken, nil
}
