package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"demandradar/internal/model"
)

// newTestClient disables real sleeping and fixes jitter so backoff
// schedules are observable.
func newTestClient(t *testing.T) (*Client, *[]time.Duration) {
	t.Helper()
	c := New(Options{Timeout: 5 * time.Second})
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	c.jitter = func() float64 { return 0.25 }
	return c, &sleeps
}

func TestRetryBoundOnTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	_, err := c.Get(context.Background(), srv.URL, nil)

	if attempts != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", attempts)
	}
	var te *model.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if te.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected last error status 500, got %d", te.StatusCode)
	}
}

func TestNoRetryOnPermanentFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	_, err := c.Get(context.Background(), srv.URL, nil)

	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	var pe *model.PermanentError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
}

func TestSucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t)
	body, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body: %q", body)
	}

	// delay before attempt n is base^n + jitter: 2.25s then 4.25s.
	want := []time.Duration{
		time.Duration(2.25 * float64(time.Second)),
		time.Duration(4.25 * float64(time.Second)),
	}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(*sleeps))
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, (*sleeps)[i], d)
		}
	}
}

func TestRateLimitDoublesDelay(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t)
	if _, err := c.Get(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Duration(2 * 2.25 * float64(time.Second))
	if len(*sleeps) != 1 || (*sleeps)[0] != want {
		t.Errorf("expected single doubled sleep of %v, got %v", want, *sleeps)
	}
}

func TestGetJSONDecodeErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	var v map[string]any
	err := c.GetJSON(context.Background(), srv.URL, nil, &v)

	var pe *model.PermanentError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
}

func TestUserAgentHeader(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t)
	if _, err := c.Get(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAgent != DefaultUserAgent {
		t.Errorf("expected browser-like user agent, got %q", gotAgent)
	}
}
