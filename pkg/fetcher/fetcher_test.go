package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veridata-Labs/fincorpus/core/pkg/errkind"
)

func newTestClient(t *testing.T, rps float64) *Client {
	t.Helper()
	c, err := New(Options{
		Identification:    "fincorpus-test admin@example.com",
		RequestsPerSecond: rps,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresIdentification(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing identification")
	}
}

func TestNewRejectsExcessiveRate(t *testing.T) {
	_, err := New(Options{Identification: "x", RequestsPerSecond: 11})
	if err == nil {
		t.Fatal("expected error for rate above source cap")
	}
}

func TestFetchSendsRequiredHeaders(t *testing.T) {
	var gotUA, gotAE string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAE = r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	res, err := c.Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Body) != "ok" || res.Status != 200 {
		t.Errorf("unexpected result: %q %d", res.Body, res.Status)
	}
	if gotUA != "fincorpus-test admin@example.com" {
		t.Errorf("User-Agent: %q", gotUA)
	}
	if gotAE != "gzip, deflate" {
		t.Errorf("Accept-Encoding: %q", gotAE)
	}
}

func TestFetchPermanentHTTPNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	_, err := c.Fetch(context.Background(), srv.URL, nil)
	if !errors.Is(err, errkind.ErrPermanentFetch) {
		t.Fatalf("expected permanent fetch error, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("4xx should not retry; got %d attempts", n)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	start := time.Now()
	res, err := c.Fetch(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Body) != "recovered" {
		t.Errorf("body: %q", res.Body)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	// Two backoffs, each at least the 2s floor.
	if elapsed := time.Since(start); elapsed < 4*time.Second {
		t.Errorf("backoff floor not honored: %v", elapsed)
	}
}

func TestFetchHonorsRetryAfter(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	start := time.Now()
	if _, err := c.Fetch(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < time.Second {
		t.Errorf("Retry-After not honored: %v", elapsed)
	}
	if elapsed > backoffMin+time.Second {
		t.Errorf("server wait should override default backoff: %v", elapsed)
	}
}

func TestFetchCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	c := newTestClient(t, 10)
	_, err := c.Fetch(ctx, srv.URL, nil)
	if !errors.Is(err, errkind.ErrCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

func TestRateCapAcrossConcurrentCallers(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, 10)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Fetch(context.Background(), srv.URL, nil)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 5 {
		t.Fatalf("expected 5 requests, got %d", len(starts))
	}
	// Burst 1 at 10 req/s: consecutive starts at least ~100ms apart.
	for i := 1; i < len(starts); i++ {
		for j := 0; j < i; j++ {
			gap := starts[i].Sub(starts[j])
			if gap < 0 {
				gap = -gap
			}
			if gap < 80*time.Millisecond {
				t.Errorf("starts %d and %d only %v apart", j, i, gap)
			}
		}
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffDelay(attempt)
		if d < backoffMin || d > backoffMax {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, d, backoffMin, backoffMax)
		}
	}
}
