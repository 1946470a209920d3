// Package overpass queries an Overpass API instance for raw OSM elements,
// with client-side rate limiting, retries and an optional response cache.
package overpass

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	ovp "github.com/serjvanilla/go-overpass"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/morpho-cli/internal/resilience"
)

// DefaultEndpoint is the main public Overpass instance.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Client runs Overpass QL queries.
type Client interface {
	Query(ctx context.Context, q string) (*Result, error)
}

// Cache stores raw query results by key. Get reports ok=false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte) error
}

// Option configures the client.
type Option func(*client)

// WithEndpoint points the client at another Overpass instance.
func WithEndpoint(url string) Option {
	return func(c *client) {
		c.endpoint = url
	}
}

// WithHTTPClient replaces the HTTP client. Its Timeout bounds each attempt.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the sustained requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithCache caches successful results.
func WithCache(cache Cache) Option {
	return func(c *client) {
		c.cache = cache
	}
}

// WithRetry replaces the retry policy.
func WithRetry(p resilience.Policy) Option {
	return func(c *client) {
		c.policy = p
	}
}

// WithBreaker guards the endpoint with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *client) {
		c.breaker = b
	}
}

type client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	policy     resilience.Policy
	breaker    *resilience.Breaker
	api        ovp.Client
	log        *zap.Logger
}

// NewClient returns an Overpass client. Without options it talks to
// DefaultEndpoint at one request per second with a three minute timeout.
func NewClient(opts ...Option) Client {
	c := &client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
		limiter:    rate.NewLimiter(1, 1),
		policy:     resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.OnRetry == nil {
		c.policy.OnRetry = resilience.LogRetries("overpass")
	}
	c.api = ovp.NewWithSettings(c.endpoint, 1, c.httpClient)
	c.log = zap.L().With(zap.String("component", "overpass"), zap.String("endpoint", c.endpoint))
	return c
}

// CacheKey identifies a query against an endpoint.
func CacheKey(endpoint, q string) string {
	h := sha256.Sum256([]byte(endpoint + "\n" + q))
	return fmt.Sprintf("%x", h)
}

// Query runs q, serving it from the cache when possible.
func (c *client) Query(ctx context.Context, q string) (*Result, error) {
	key := CacheKey(c.endpoint, q)
	if res, ok := c.cached(ctx, key); ok {
		return res, nil
	}

	attempt := func(ctx context.Context) (*Result, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "overpass: rate limit wait")
		}
		if c.breaker != nil {
			return resilience.Guard(ctx, c.breaker, func(ctx context.Context) (*Result, error) {
				return c.run(ctx, q)
			})
		}
		return c.run(ctx, q)
	}

	start := time.Now()
	res, err := resilience.Retry(ctx, c.policy, attempt)
	if err != nil {
		return nil, err
	}
	c.log.Debug("query finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("nodes", len(res.Nodes)),
		zap.Int("ways", len(res.Ways)),
		zap.Int("relations", len(res.Relations)),
	)

	if c.cache != nil {
		if data, mErr := json.Marshal(res); mErr == nil {
			if sErr := c.cache.Set(ctx, key, data); sErr != nil {
				c.log.Warn("cache write failed", zap.Error(sErr))
			}
		}
	}
	return res, nil
}

func (c *client) cached(ctx context.Context, key string) (*Result, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.log.Warn("cache entry unreadable", zap.Error(err))
		return nil, false
	}
	c.log.Debug("cache hit", zap.String("key", key[:12]))
	return &res, true
}

// run executes one request. The underlying client has no context support,
// so the call is abandoned, not aborted, when ctx ends; the HTTP timeout
// eventually releases it.
func (c *client) run(ctx context.Context, q string) (*Result, error) {
	type answer struct {
		res ovp.Result
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		res, err := c.api.Query(q)
		ch <- answer{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "overpass: query")
	case a := <-ch:
		if a.err != nil {
			return nil, classify(a.err)
		}
		return convert(a.res), nil
	}
}

func classify(err error) error {
	var se *ovp.ServerError
	if errors.As(err, &se) {
		wrapped := eris.Wrapf(err, "overpass: server answered %d", se.StatusCode)
		if resilience.TransientStatus(se.StatusCode) {
			return resilience.Transient(wrapped, se.StatusCode)
		}
		return wrapped
	}
	return eris.Wrap(err, "overpass: request")
}
