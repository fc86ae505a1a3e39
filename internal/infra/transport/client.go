package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

// Cache stores vendor response bodies for a short time.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Archive keeps a copy of every fetched vendor response.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Consumer is the application's OAuth1 identity at a vendor.
type Consumer struct {
	Key    string
	Secret string
}

// BreakerConfig tunes the per-vendor circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Config drives outbound vendor calls.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	CacheTTL     time.Duration
	Backoff      BackoffConfig
	Breaker      BreakerConfig
	Consumers    map[string]Consumer
}

// Client executes authorized vendor requests. It implements shim.Fetcher.
type Client struct {
	cfg     Config
	http    *http.Client
	signers map[string]*OAuth1Signer
	cache   Cache
	archive Archive
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ shim.Fetcher = (*Client)(nil)

// NewClient builds a transport client. cache and archive may be nil.
func NewClient(cfg Config, httpClient *http.Client, cache Cache, archive Archive, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Breaker.ConsecutiveFailures == 0 {
		cfg.Breaker.ConsecutiveFailures = 5
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	signers := make(map[string]*OAuth1Signer, len(cfg.Consumers))
	for shimKey, consumer := range cfg.Consumers {
		if consumer.Key == "" {
			continue
		}
		signers[strings.ToLower(shimKey)] = NewOAuth1Signer(consumer.Key, consumer.Secret)
	}
	return &Client{
		cfg:      cfg,
		http:     httpClient,
		signers:  signers,
		cache:    cache,
		archive:  archive,
		logger:   logger.With("component", "transport.client"),
		now:      time.Now,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Fetch returns the vendor body for req, serving from cache when possible.
func (c *Client) Fetch(ctx context.Context, req shim.VendorRequest) ([]byte, error) {
	cacheKey := c.cacheKey(req)
	if c.cache != nil && c.cfg.CacheTTL > 0 {
		body, ok, err := c.cache.Get(ctx, cacheKey)
		if err != nil {
			c.logger.Warn("response cache lookup failed", "shim", req.ShimKey, "error", err)
		} else if ok {
			c.logger.Debug("response cache hit", "shim", req.ShimKey, "dataType", req.DataType)
			return body, nil
		}
	}

	authorize, err := c.authorizer(req)
	if err != nil {
		return nil, err
	}
	build := func() (*http.Request, error) {
		return authorize(ctx, req.URL)
	}

	start := c.now()
	resp, err := doRequestWithResilience(ctx, c.http, c.cfg.Backoff, c.breaker(req.ShimKey), build)
	if err != nil {
		c.logger.Warn("vendor request failed",
			"shim", req.ShimKey,
			"dataType", req.DataType,
			"durationMs", c.now().Sub(start).Milliseconds(),
			"error", err,
		)
		return nil, apperrors.Wrap(shim.CodeTransportFailure, "could not fetch data", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, apperrors.Wrap(shim.CodeTransportFailure, "could not fetch data", fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, apperrors.Wrap(shim.CodeTransportFailure, "could not fetch data", fmt.Errorf("response exceeds %d bytes", c.cfg.MaxBodyBytes))
	}
	c.logger.Info("vendor request completed",
		"shim", req.ShimKey,
		"dataType", req.DataType,
		"status", resp.StatusCode,
		"bytes", len(body),
		"durationMs", c.now().Sub(start).Milliseconds(),
	)

	if c.cache != nil && c.cfg.CacheTTL > 0 && (req.Cacheable == nil || req.Cacheable(body)) {
		if err := c.cache.Set(ctx, cacheKey, body, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("response cache store failed", "shim", req.ShimKey, "error", err)
		}
	}
	if c.archive != nil {
		key := ArchiveKey(req.ShimKey, req.DataType, req.Access.Username, c.now())
		if err := c.archive.Put(ctx, key, body); err != nil {
			c.logger.Warn("response archive failed", "key", key, "error", err)
		}
	}
	return body, nil
}

type authorizeFunc func(ctx context.Context, rawURL string) (*http.Request, error)

func (c *Client) authorizer(req shim.VendorRequest) (authorizeFunc, error) {
	access := req.Access
	switch access.Scheme {
	case shim.SchemeOAuth1, "":
		signer, ok := c.signers[strings.ToLower(req.ShimKey)]
		if !ok {
			return nil, apperrors.Wrap(shim.CodeTransportFailure, fmt.Sprintf("no oauth1 consumer configured for %s", req.ShimKey), nil)
		}
		return func(ctx context.Context, rawURL string) (*http.Request, error) {
			signed, err := signer.SignURL(http.MethodGet, rawURL, access.AccessToken, access.TokenSecret)
			if err != nil {
				return nil, err
			}
			return http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
		}, nil
	case shim.SchemeOAuth2:
		token := &oauth2.Token{
			AccessToken:  access.AccessToken,
			TokenType:    "Bearer",
			RefreshToken: access.RefreshToken,
		}
		if access.ExpiresAt != nil {
			token.Expiry = *access.ExpiresAt
		}
		if !token.Valid() {
			return nil, apperrors.Wrap(shim.CodeAccountIncomplete, "oauth2 access token is missing or expired", nil)
		}
		return func(ctx context.Context, rawURL string) (*http.Request, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return nil, err
			}
			token.SetAuthHeader(httpReq)
			return httpReq, nil
		}, nil
	default:
		return nil, apperrors.Wrap(shim.CodeAccountIncomplete, fmt.Sprintf("unsupported scheme %q", access.Scheme), nil)
	}
}

func (c *Client) breaker(shimKey string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[shimKey]; ok {
		return cb
	}
	threshold := c.cfg.Breaker.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        shimKey,
		MaxRequests: c.cfg.Breaker.MaxRequests,
		Interval:    c.cfg.Breaker.Interval,
		Timeout:     c.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "shim", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[shimKey] = cb
	return cb
}

// cacheKey covers the unsigned URL, which already carries the vendor user id and range.
func (c *Client) cacheKey(req shim.VendorRequest) string {
	sum := sha256.Sum256([]byte(req.URL))
	return req.ShimKey + ":" + hex.EncodeToString(sum[:])
}

// ArchiveKey names an archived response: <shim>/<dataType>/<username>/<unixnano>.json.
func ArchiveKey(shimKey, dataType, username string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%d.json", shimKey, dataType, url.PathEscape(username), at.UnixNano())
}
