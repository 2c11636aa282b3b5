package request

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"fossiljourney/pkg/store"
	"fossiljourney/pkg/tracker"
	"fossiljourney/pkg/version"
)

// StatusError reports a non-retryable upstream HTTP status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d for %s", e.Code, e.URL)
}

// ClientConfig holds tunables for the HTTP client.
type ClientConfig struct {
	Retries   int
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Client handles HTTP requests with per-provider queuing, caching, and
// usage tracking. Requests to one provider are serialized; providers run
// in parallel.
type Client struct {
	httpClient *http.Client
	cache      store.CacheStore
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	retries    int
	baseDelay  time.Duration

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex // Protects queues map
}

// job represents a queued request.
type job struct {
	req      *http.Request
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client.
func New(c store.CacheStore, t *tracker.Tracker, cfg ClientConfig) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      c,
		tracker:    t,
		backoff:    NewProviderBackoff(cfg.BaseDelay, cfg.MaxDelay, clockwork.NewRealClock()),
		retries:    cfg.Retries,
		baseDelay:  cfg.BaseDelay,
		queues:     make(map[string]chan job),
	}
}

var defaultUserAgent = fmt.Sprintf("FossilJourneyTracker/%s", version.Version)

// SetUserAgentContact appends a contact address to the User-Agent, as asked
// for by the GPlates Web Service usage guidelines.
func (c *Client) SetUserAgentContact(contact string) {
	if contact != "" {
		defaultUserAgent = fmt.Sprintf("FossilJourneyTracker/%s (%s)", version.Version, contact)
	}
}

// Get performs a GET request with queuing and caching if key is provided.
// A cache hit is served directly and never touches the network.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	// 1. Check cache (only if key is provided)
	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	j := job{req: req, cacheKey: cacheKey, respChan: respChan}

	c.dispatch(provider, j)

	// 3. Wait for result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

func normalizeProvider(host string) string {
	// Group GPlates Web Service hosts into one provider for serialization.
	if strings.HasSuffix(host, ".gplates.org") || host == "gplates.org" {
		return "gplates"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// We block here if the queue is full, effectively throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		// Caller gave up before we could even enqueue
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		// Check context before processing
		if j.req.Context().Err() != nil {
			slog.Warn("Job dropped from queue (context expired)", "provider", provider, "error", j.req.Context().Err())
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		j.req.Header.Set("User-Agent", defaultUserAgent)

		// Honor any standing backoff for this provider before dialing.
		c.backoff.Wait(provider)

		body, err := c.executeWithBackoff(j.req)

		if err == nil {
			c.tracker.TrackAPISuccess(provider)
			c.backoff.RecordSuccess(provider)
			// Cache result (only if key is provided)
			if j.cacheKey != "" {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		} else {
			c.tracker.TrackAPIFailure(provider)
			c.backoff.RecordFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}

		// Hardcoded safety gap to prevent hitting rate limits
		time.Sleep(100 * time.Millisecond)
	}
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	baseDelay := c.baseDelay

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		// Verify context is still alive before dialing
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)

		if err != nil {
			// Check if the error is a context cancellation from OUR side
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}

			// Otherwise, it's a network error or server timeout
			slog.Warn("Request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			lastErr = err
			if !sleepBackoff(req.Context(), attempt, baseDelay) {
				return nil, req.Context().Err()
			}
			continue
		}

		// Retryable statuses: rate limiting and server errors
		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			slog.Warn("API Backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)
			lastErr = &StatusError{Code: resp.StatusCode, URL: req.URL.String()}
			if !sleepBackoff(req.Context(), attempt, baseDelay) {
				return nil, req.Context().Err()
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.String()}
		}

		// Success
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// sleepBackoff sleeps 2^attempt * base, or returns false if the context
// expired while waiting.
func sleepBackoff(ctx context.Context, attempt int, base time.Duration) bool {
	sleepDur := (1 << attempt) * base
	select {
	case <-time.After(sleepDur):
		return true
	case <-ctx.Done():
		return false
	}
}
