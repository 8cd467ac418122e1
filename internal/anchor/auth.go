// Package anchor wraps external payout-rail services. Two protocol variants
// exist per anchor: a synchronous withdrawal (SEP-6 style) requiring prior
// authentication, and an interactive hosted flow (SEP-24 style) returning a
// redirect handle that is polled to completion.
package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"remit/internal/corridor"
	"remit/pkg/errors"
	"remit/pkg/logger"
)

// TokenCache stores anchor auth tokens keyed by anchor domain. Satisfied by
// both cache.RedisCache and cache.MemoryCache.
type TokenCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}

// AuthClient obtains and caches per-anchor auth tokens. The cache TTL is
// taken from the token's own exp claim when present, falling back to the
// configured default.
type AuthClient struct {
	httpClient *http.Client
	baseURL    string
	cache      TokenCache
	defaultTTL time.Duration
	logger     logger.Logger
}

func NewAuthClient(baseURL string, timeout, defaultTTL time.Duration, cache TokenCache, log logger.Logger) *AuthClient {
	return &AuthClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		cache:      cache,
		defaultTTL: defaultTTL,
		logger:     log,
	}
}

// Token returns a valid auth token for the anchor, from cache when possible.
func (c *AuthClient) Token(ctx context.Context, a *corridor.Anchor, account string) (string, error) {
	cacheKey := "anchor_token:" + a.Domain + ":" + account

	var cached string
	if err := c.cache.Get(ctx, cacheKey, &cached); err == nil && cached != "" {
		return cached, nil
	}

	token, err := c.authenticate(ctx, a, account)
	if err != nil {
		return "", err
	}

	ttl := c.defaultTTL
	if exp, ok := tokenExpiry(token); ok {
		if remaining := time.Until(exp); remaining > 0 {
			ttl = remaining
		}
	}
	if err := c.cache.Set(ctx, cacheKey, token, ttl); err != nil {
		c.logger.Warn("Failed to cache anchor token", map[string]interface{}{
			"anchor": a.Name,
			"error":  err.Error(),
		})
	}
	return token, nil
}

func (c *AuthClient) authenticate(ctx context.Context, a *corridor.Anchor, account string) (string, error) {
	u := fmt.Sprintf("%s/auth?account=%s", baseURLFor(c.baseURL, a), account)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build anchor auth request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewCoded("ECONNREFUSED", "anchor auth unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Wrap(errors.ErrAnchorAuthFailed, fmt.Sprintf("status %d: %s", resp.StatusCode, body))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "failed to decode anchor auth response")
	}
	if out.Token == "" {
		return "", errors.ErrAnchorAuthFailed
	}
	return out.Token, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// is opaque to us and only the anchor validates it, but its expiry bounds how
// long caching it is useful.
func tokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// baseURLFor resolves the endpoint for an anchor: the configured override
// when set (local sim), otherwise the anchor's advertised domain.
func baseURLFor(override string, a *corridor.Anchor) string {
	if override != "" {
		return override
	}
	return "https://" + a.Domain
}
