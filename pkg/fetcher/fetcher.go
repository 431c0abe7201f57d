// Package fetcher performs outbound HTTP against regulatory filing sources.
// A single token bucket is shared across all concurrent callers so the global
// rate cap holds regardless of worker count. SEC-style sources require at
// most 10 requests/second and a populated identification header; both are
// enforced at construction.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	neturl "net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
)

const (
	// MaxRequestsPerSecond is the hard cap regulatory sources impose.
	MaxRequestsPerSecond = 10

	defaultAttemptTimeout = 30 * time.Second
	defaultMaxAttempts    = 3

	backoffMin = 2 * time.Second
	backoffMax = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	// Identification is the mandatory identification string sent as
	// User-Agent on every request.
	Identification string
	// RequestsPerSecond defaults to 10 and may not exceed 10.
	RequestsPerSecond float64
	// MaxAttempts is the total number of tries per fetch (default 3).
	MaxAttempts int
	// AttemptTimeout bounds a single HTTP attempt (default 30s).
	AttemptTimeout time.Duration
	// Transport overrides the HTTP transport, for tests.
	Transport http.RoundTripper
	// SharedBucket adds a cross-process cap on top of the local limiter.
	SharedBucket *SharedBucket
}

// Client is a rate-limited, retrying HTTP fetcher.
type Client struct {
	client      *http.Client
	limiter     *rate.Limiter
	shared      *SharedBucket
	ident       string
	maxAttempts int
	logger      *slog.Logger
}

// Result carries the raw response body and HTTP status of a fetch.
type Result struct {
	Body   []byte
	Status int
}

// New creates a Client. A missing identification header or a rate above the
// source cap is a configuration error surfaced at startup, not at call time.
func New(opts Options) (*Client, error) {
	if opts.Identification == "" {
		return nil, fmt.Errorf("fetcher: identification header is required")
	}
	rps := opts.RequestsPerSecond
	if rps == 0 {
		rps = MaxRequestsPerSecond
	}
	if rps > MaxRequestsPerSecond {
		return nil, fmt.Errorf("fetcher: rate %.1f req/s exceeds source cap of %d", rps, MaxRequestsPerSecond)
	}
	attempts := opts.MaxAttempts
	if attempts == 0 {
		attempts = defaultMaxAttempts
	}
	timeout := opts.AttemptTimeout
	if timeout == 0 {
		timeout = defaultAttemptTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		// Burst 1: starts are at least 1/rps apart.
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		shared:      opts.SharedBucket,
		ident:       opts.Identification,
		maxAttempts: attempts,
		logger:      slog.Default().With("component", "fetcher"),
	}, nil
}

// Fetch retrieves url, honoring the global rate cap and retry policy.
// Returns the raw body; no parsing. Error kinds:
// errkind.ErrTransientFetch (retries exhausted), errkind.ErrPermanentFetch
// (4xx except 429), errkind.ErrCancelled (context done).
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errkind.Wrap(errkind.ErrCancelled, "rate-limit wait: %v", err)
		}
		if err := c.waitShared(ctx, url); err != nil {
			return nil, err
		}

		res, retryAfter, err := c.attempt(ctx, url, headers)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, errkind.ErrPermanentFetch) || errors.Is(err, errkind.ErrCancelled) {
			return nil, err
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}

		wait := backoffDelay(attempt)
		if retryAfter > 0 {
			wait = retryAfter
		}
		c.logger.Warn("fetch attempt failed, backing off",
			"url", url, "attempt", attempt, "wait", wait, "err", err)

		select {
		case <-ctx.Done():
			return nil, errkind.Wrap(errkind.ErrCancelled, "backoff interrupted: %v", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, errkind.Wrap(errkind.ErrTransientFetch, "exhausted %d attempts: %v", c.maxAttempts, lastErr)
}

// waitShared blocks until the cross-process bucket grants a token for the
// source host. Redis errors fail open; the local bucket still caps this
// process.
func (c *Client) waitShared(ctx context.Context, rawURL string) error {
	if c.shared == nil {
		return nil
	}
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return errkind.Wrap(errkind.ErrPermanentFetch, "bad url: %v", err)
	}
	for {
		allowed, err := c.shared.Allow(ctx, u.Host)
		if err != nil {
			c.logger.Warn("shared bucket unavailable, using local limiter only", "err", err)
			return nil
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return errkind.Wrap(errkind.ErrCancelled, "shared bucket wait: %v", ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// attempt runs a single HTTP request. A nonzero duration return carries a
// server-directed Retry-After wait that replaces the default backoff.
func (c *Client) attempt(ctx context.Context, url string, headers map[string]string) (*Result, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errkind.Wrap(errkind.ErrPermanentFetch, "bad request: %v", err)
	}
	req.Header.Set("User-Agent", c.ident)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Host = req.URL.Host
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, errkind.Wrap(errkind.ErrCancelled, "%v", ctx.Err())
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, 0, fmt.Errorf("attempt timeout: %w", err)
		}
		return nil, 0, fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, 0, fmt.Errorf("server error: HTTP %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("throttled: HTTP 429")
	case resp.StatusCode >= 400:
		return nil, 0, errkind.Wrap(errkind.ErrPermanentFetch, "HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, 0, fmt.Errorf("body read failed: %w", err)
	}
	return &Result{Body: body, Status: resp.StatusCode}, 0, nil
}

// decodeBody handles the content encodings we advertise. The transport does
// not auto-decompress because we set Accept-Encoding explicitly.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer func() { _ = fl.Close() }()
		reader = fl
	}
	return io.ReadAll(reader)
}

// backoffDelay computes the exponential backoff for the given attempt,
// clamped to [2s, 10s].
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d < backoffMin {
		d = backoffMin
	}
	if d > backoffMax {
		d = backoffMax
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
