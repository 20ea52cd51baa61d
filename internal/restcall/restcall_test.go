package restcall

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
)

func failingServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
			return
		}
		if r.Header.Get("X-Auth-Token") != "t1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestJSONRetriesGatewayStatus(t *testing.T) {
	ts, calls := failingServer(t, 2, http.StatusServiceUnavailable)
	var out struct {
		OK bool `json:"ok"`
	}
	err := New().JSON(context.Background(), fasthttp.MethodGet, ts.URL, map[string]string{"X-Auth-Token": "t1", " ": "skip"}, nil, &out, true)
	if err != nil || !out.OK {
		t.Fatalf("JSON = %+v, %v", out, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestJSONWithoutRetryStopsAtFirstFailure(t *testing.T) {
	ts, calls := failingServer(t, 1, http.StatusBadGateway)
	err := New().JSON(context.Background(), fasthttp.MethodPost, ts.URL, nil, map[string]string{"a": "b"}, nil, false)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
	if len(se.Body) != maxErrorBody {
		t.Fatalf("body not truncated: %d bytes", len(se.Body))
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	ts, calls := failingServer(t, 5, http.StatusNotFound)
	err := New().JSON(context.Background(), fasthttp.MethodGet, ts.URL, nil, nil, nil, true)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound || calls.Load() != 1 {
		t.Fatalf("err = %v calls = %d", err, calls.Load())
	}
}

func TestCanceledContextStopsRetries(t *testing.T) {
	ts, calls := failingServer(t, 10, http.StatusServiceUnavailable)
	c := New()
	c.RetryMax = 10
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := c.JSON(ctx, fasthttp.MethodGet, ts.URL, nil, nil, nil, true); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() >= 10 {
		t.Fatalf("retries ignored the context: %d calls", calls.Load())
	}
}

func TestBackoffAndDeadline(t *testing.T) {
	if Backoff(0) != 100*time.Millisecond || Backoff(3) != 400*time.Millisecond || Backoff(99) != 3200*time.Millisecond {
		t.Fatalf("backoff = %v %v %v", Backoff(0), Backoff(3), Backoff(99))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	dl, _ := ctx.Deadline()
	if got := Deadline(ctx, time.Hour); !got.Equal(dl) {
		t.Fatalf("deadline = %v, want context deadline %v", got, dl)
	}
	if got := Deadline(context.Background(), time.Second); time.Until(got) > time.Second {
		t.Fatalf("deadline too far: %v", got)
	}
}
