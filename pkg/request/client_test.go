package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fossiljourney/pkg/db"
	"fossiljourney/pkg/store"
	"fossiljourney/pkg/tracker"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "client_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	st := store.NewSQLiteStore(d)
	tr := tracker.NewWithRegistry(prometheus.NewRegistry())
	return New(st, tr, ClientConfig{Retries: 3, Timeout: 5 * time.Second})
}

func TestGetSequentialPerProvider(t *testing.T) {
	// Handler asserts at most one in-flight request at a time: one provider
	// means one worker, so the queue must serialize.
	var conc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)

		if current > 1 {
			t.Errorf("concurrency detected, expected sequential execution")
		}
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	client := newTestClient(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestGetRetriesOn429(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("success"))
	}))
	defer svr.Close()

	client := newTestClient(t)

	body, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("expected success after retry, got error: %v", err)
	}
	if string(body) != "success" {
		t.Errorf("body = %q, want success", body)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestGetRetryUsesConfiguredBaseDelay(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	d, err := db.Init(filepath.Join(t.TempDir(), "client_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	st := store.NewSQLiteStore(d)
	tr := tracker.NewWithRegistry(prometheus.NewRegistry())
	client := New(st, tr, ClientConfig{Retries: 3, Timeout: 5 * time.Second, BaseDelay: time.Millisecond})

	start := time.Now()
	if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// Two retry sleeps at a 1ms base; hundreds of milliseconds here means
	// the configured delay is not reaching the retry loop.
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("retries took %v, configured base delay was ignored", elapsed)
	}
}

func TestGet404IsStatusError(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer svr.Close()

	client := newTestClient(t)

	_, err := client.Get(context.Background(), svr.URL, "")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", se.Code)
	}
	// 404 is permanent, must not be retried.
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestGetServesSecondCallFromCache(t *testing.T) {
	var hits int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(200)
		_, _ = w.Write([]byte("payload"))
	}))
	defer svr.Close()

	client := newTestClient(t)
	ctx := context.Background()

	first, err := client.Get(ctx, svr.URL, "cache_key")
	if err != nil {
		t.Fatal(err)
	}
	second, err := client.Get(ctx, svr.URL, "cache_key")
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != "payload" || string(second) != "payload" {
		t.Errorf("bodies = %q, %q", first, second)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("upstream hits = %d, want 1 (second call must be served from cache)", n)
	}
}

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"gws.gplates.org", "gplates"},
		{"gplates.org", "gplates"},
		{"portal.gplates.org", "gplates"},
		{"other.example.com", "other.example.com"},
	}

	for _, tt := range tests {
		if got := normalizeProvider(tt.host); got != tt.expected {
			t.Errorf("normalizeProvider(%q) = %q; want %q", tt.host, got, tt.expected)
		}
	}
}
