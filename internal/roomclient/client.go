// Package roomclient talks to a roomd server: plain calls over fasthttp and a
// reconnecting websocket for the snapshot stream.
package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-rooms/internal/httpapi"
	"github.com/park285/cheese-rooms/internal/restcall"
	"github.com/park285/cheese-rooms/internal/room"
	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// APIError is a non-2xx answer. Body is decoded when the server sent its
// usual error shape.
type APIError struct {
	Status int
	Body   httpapi.ErrorBody
	Raw    string
}

func (e *APIError) Error() string {
	if e.Body.Kind != "" {
		return fmt.Sprintf("roomd api error: status=%d kind=%s", e.Status, e.Body.Kind)
	}
	return fmt.Sprintf("roomd api error: status=%d body=%s", e.Status, e.Raw)
}

// KindOf returns the error kind reported by the server, or "" for other errors.
func KindOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body.Kind
	}
	return ""
}

type Client struct {
	baseURL string
	call    *restcall.Caller
	headers HeaderProvider

	tabM  sync.RWMutex
	tabID string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.call.Timeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.call.HTTP.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry bounds attempts for reads. Writes are never retried.
func WithRetry(max int) Option {
	return func(c *Client) { c.call.RetryMax = max }
}

// WithTabID sends the tab id so the server records rooms in that tab's session.
func WithTabID(id string) Option {
	return func(c *Client) { c.tabID = strings.TrimSpace(id) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		call:    restcall.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TabID is the tab id in use, possibly minted by the server on the first create or join.
func (c *Client) TabID() string {
	c.tabM.RLock()
	defer c.tabM.RUnlock()
	return c.tabID
}

func (c *Client) adoptTabID(id string) {
	c.tabM.Lock()
	if c.tabID == "" {
		c.tabID = id
	}
	c.tabM.Unlock()
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, nil, true)
}

func (c *Client) CreateRoom(ctx context.Context, req httpapi.CreateRequest) (httpapi.RoomRef, error) {
	var ref httpapi.RoomRef
	err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms", req, &ref, false)
	return ref, err
}

func (c *Client) JoinRoom(ctx context.Context, roomID, nickname string) (httpapi.RoomRef, error) {
	var ref httpapi.RoomRef
	err := c.doJSON(ctx, fasthttp.MethodPost, roomPath(roomID)+"/join", httpapi.JoinRequest{Nickname: nickname}, &ref, false)
	return ref, err
}

func (c *Client) ReadRoom(ctx context.Context, roomID string) (*room.Room, error) {
	var rm room.Room
	if err := c.doJSON(ctx, fasthttp.MethodGet, roomPath(roomID), nil, &rm, true); err != nil {
		return nil, err
	}
	return &rm, nil
}

func (c *Client) UpdateRoom(ctx context.Context, roomID string, patch httpapi.PatchRequest) error {
	return c.doJSON(ctx, fasthttp.MethodPatch, roomPath(roomID), patch, nil, false)
}

// PlayMove plays a UCI move from the room's current position.
func (c *Client) PlayMove(ctx context.Context, roomID, uci string) error {
	return c.UpdateRoom(ctx, roomID, httpapi.PatchRequest{Move: uci})
}

// StreamURL is the websocket address of roomID's snapshot stream.
func (c *Client) StreamURL(roomID string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + roomPath(roomID) + "/ws"
}

// Watch prepares a stream of roomID's snapshots with this client's headers.
// Call Connect on the result to start it.
func (c *Client) Watch(roomID string, maxReconnectAttempts int, reconnectDelay time.Duration) *Stream {
	s := NewStream(c.StreamURL(roomID), maxReconnectAttempts, reconnectDelay)
	s.SetHeaderProvider(c.requestHeaders)
	return s
}

func roomPath(roomID string) string { return "/rooms/" + url.PathEscape(strings.TrimSpace(roomID)) }

func (c *Client) requestHeaders() map[string]string {
	out := map[string]string{}
	if c.headers != nil {
		for k, v := range c.headers() {
			out[k] = v
		}
	}
	if tab := c.TabID(); tab != "" {
		out[httpapi.TabHeader] = tab
	}
	return out
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	if err := restcall.Prepare(req, method, c.baseURL+path, c.requestHeaders(), in); err != nil {
		return err
	}
	err := c.call.Do(ctx, req, resp, retry)
	if tab := string(resp.Header.Peek(httpapi.TabHeader)); tab != "" {
		c.adoptTabID(tab)
	}
	var se *restcall.StatusError
	if errors.As(err, &se) {
		apiErr := &APIError{Status: se.Status, Raw: string(se.Body)}
		_ = json.Unmarshal(se.Body, &apiErr.Body)
		return apiErr
	}
	if err != nil {
		return err
	}
	return restcall.Decode(resp, out)
}
