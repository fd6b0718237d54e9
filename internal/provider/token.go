package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopscout/shopscout/internal/cache"
	"github.com/shopscout/shopscout/internal/httpclient"
)

const (
	tokenCacheKey = "pricing:token"

	// Refresh when the cached token has less than this left to live.
	tokenRefreshFloor = 60 * time.Second
)

// TokenSource caches the pricing provider's OAuth access token and refreshes
// it when its remaining TTL drops below the floor.
type TokenSource struct {
	client       *httpclient.Client
	cache        *cache.Cache
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string

	now func() time.Time
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func NewTokenSource(client *httpclient.Client, c *cache.Cache, tokenURL, clientID, clientSecret, scope string) *TokenSource {
	return &TokenSource{
		client:       client,
		cache:        c,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		now:          time.Now,
	}
}

func (t *TokenSource) Token(ctx context.Context) (string, error) {
	payload, hit, err := t.cache.Get(ctx, tokenCacheKey)
	if err == nil && hit {
		var cached cachedToken
		if err := json.Unmarshal(payload, &cached); err == nil {
			if cached.ExpiresAt.Sub(t.now()) > tokenRefreshFloor {
				return cached.AccessToken, nil
			}
		}
	}

	return t.fetch(ctx)
}

func (t *TokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if t.scope != "" {
		form.Set("scope", t.scope)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(t.clientID + ":" + t.clientSecret))

	// Token grants are not idempotent; they fail once, no retry.
	resp, err := t.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    t.tokenURL,
		Header: http.Header{
			"Content-Type":  []string{"application/x-www-form-urlencoded"},
			"Authorization": []string{"Basic " + basic},
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return "", err
	}

	var parsed tokenResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("%w: access_token", ErrSchema)
	}

	expiresAt := t.expiry(parsed)

	cached, _ := json.Marshal(cachedToken{AccessToken: parsed.AccessToken, ExpiresAt: expiresAt})
	if ttl := expiresAt.Sub(t.now()); ttl > 0 {
		if err := t.cache.Put(ctx, tokenCacheKey, cached, ttl); err != nil {
			// A write failure only costs an extra fetch next time.
			_ = err
		}
	}

	return parsed.AccessToken, nil
}

// expiry prefers the exp claim when the provider issues a JWT, since that is
// authoritative; expires_in is the fallback for opaque tokens.
func (t *TokenSource) expiry(resp tokenResponse) time.Time {
	if strings.Count(resp.AccessToken, ".") == 2 {
		parser := jwt.NewParser()
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(resp.AccessToken, claims); err == nil {
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				return exp.Time
			}
		}
	}

	if resp.ExpiresIn > 0 {
		return t.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return t.now().Add(tokenRefreshFloor)
}
