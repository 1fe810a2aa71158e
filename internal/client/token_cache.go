package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/hseguard/syncd/internal/config"
)

const (
	// expirySkew invalidates tokens five minutes before their real expiry so
	// a token handed to a slow request cannot go stale mid-flight.
	expirySkew = 5 * time.Minute

	// cacheTTL bounds how long a token is served from cache regardless of
	// its remaining lifetime.
	cacheTTL = 60 * time.Second

	tokenCacheKey = "dalux:token"
)

// Token is a cached OAuth2 access token from the client-credentials grant.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ValidAt reports whether the token is still usable at the given instant,
// applying the expiry skew.
func (t *Token) ValidAt(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	expiry := t.IssuedAt.Add(time.Duration(t.ExpiresIn)*time.Second - expirySkew)
	return now.Before(expiry)
}

// TokenProvider yields a bearer token for the Dalux API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenCache caches the short-lived Dalux token in process memory, layered
// over an optional Redis cache shared between worker replicas. Concurrent
// misses are coalesced into a single refresh.
type TokenCache struct {
	cfg        *config.DaluxConfig
	httpClient *http.Client
	redis      *redis.Client // nil disables the distributed layer
	logger     *slog.Logger

	mu       sync.RWMutex
	cached   *Token
	cachedAt time.Time

	group singleflight.Group
	now   func() time.Time
}

// NewTokenCache creates a token cache. redisClient may be nil.
func NewTokenCache(cfg *config.DaluxConfig, redisClient *redis.Client, logger *slog.Logger) *TokenCache {
	return &TokenCache{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		redis:      redisClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Token returns a valid access token, fetching a fresh one when the cached
// token is missing or stale. Failures are returned as *AuthError.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	now := c.now()

	c.mu.RLock()
	cached, cachedAt := c.cached, c.cachedAt
	c.mu.RUnlock()

	if cached.ValidAt(now) && now.Sub(cachedAt) < cacheTTL {
		return cached.AccessToken, nil
	}

	v, err, _ := c.group.Do(tokenCacheKey, func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(*Token).AccessToken, nil
}

func (c *TokenCache) refresh(ctx context.Context) (*Token, error) {
	now := c.now()

	// Revalidate the in-memory token first: the cache entry TTL bounds how
	// long validity goes unchecked, not how long a token may live.
	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached.ValidAt(now) {
		c.store(cached, now)
		return cached, nil
	}

	// Another replica may have refreshed already.
	if tok := c.fromRedis(ctx, now); tok != nil {
		c.store(tok, now)
		return tok, nil
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	tok.IssuedAt = now

	c.store(tok, now)
	c.toRedis(ctx, tok)
	return tok, nil
}

// fetch performs the client-credentials grant against the token endpoint.
func (c *TokenCache) fetch(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("scope", c.cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("token endpoint unreachable", "url", c.cfg.TokenURL, "error", err)
		return nil, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("token endpoint rejected grant",
			"url", c.cfg.TokenURL,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &AuthError{Err: err}
	}

	c.logger.Debug("fetched dalux token", "expires_in", tok.ExpiresIn)
	return &tok, nil
}

func (c *TokenCache) store(tok *Token, now time.Time) {
	c.mu.Lock()
	c.cached = tok
	c.cachedAt = now
	c.mu.Unlock()
}

func (c *TokenCache) fromRedis(ctx context.Context, now time.Time) *Token {
	if c.redis == nil {
		return nil
	}
	data, err := c.redis.Get(ctx, tokenCacheKey).Bytes()
	if err != nil {
		return nil
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil
	}
	if !tok.ValidAt(now) {
		return nil
	}
	return &tok
}

func (c *TokenCache) toRedis(ctx context.Context, tok *Token) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	// Best effort; the in-memory layer still bounds staleness.
	if err := c.redis.Set(ctx, tokenCacheKey, data, cacheTTL).Err(); err != nil {
		c.logger.Warn("failed to cache token in redis", "error", err)
	}
}
