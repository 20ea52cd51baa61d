// Package restcall sends JSON requests over fasthttp with a per-call deadline
// and bounded retries. Only callers that know a request is idempotent ask for
// retries.
package restcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const maxErrorBody = 512

// StatusError is a non-2xx answer. Body holds at most the first 512 bytes.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.Status, e.Body)
}

type Caller struct {
	HTTP     *fasthttp.Client
	Timeout  time.Duration
	RetryMax int
}

func New() *Caller {
	return &Caller{
		HTTP:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		Timeout:  10 * time.Second,
		RetryMax: 3,
	}
}

// Do sends req and leaves the 2xx answer in resp. With retry, transport
// failures and gateway-class statuses are retried up to RetryMax attempts.
func (c *Caller) Do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, retry bool) error {
	attempts := 1
	if retry {
		attempts = max(c.RetryMax, 1)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.HTTP.DoDeadline(req, resp, Deadline(ctx, c.Timeout)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			body := resp.Body()
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			lastErr = &StatusError{Status: status, Body: append([]byte(nil), body...)}
			if !RetryableStatus(status) {
				return lastErr
			}
		} else {
			return nil
		}
		if attempt == attempts || Sleep(ctx, Backoff(attempt)) != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

// JSON encodes in (when non-nil) as the body, sends it through Do and decodes
// a non-empty answer into out (when non-nil).
func (c *Caller) JSON(ctx context.Context, method, url string, header map[string]string, in, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	if err := Prepare(req, method, url, header, in); err != nil {
		return err
	}
	if err := c.Do(ctx, req, resp, retry); err != nil {
		return err
	}
	return Decode(resp, out)
}

// Prepare fills req for a JSON call. Blank header names or values are skipped.
func Prepare(req *fasthttp.Request, method, url string, header map[string]string, in any) error {
	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	for k, v := range header {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}
	return nil
}

func Decode(resp *fasthttp.Response, out any) error {
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Deadline is now+timeout, or the context's deadline when that comes first.
func Deadline(ctx context.Context, timeout time.Duration) time.Time {
	clientDL := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func Backoff(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond // 100ms, 200ms ...
}

func RetryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
