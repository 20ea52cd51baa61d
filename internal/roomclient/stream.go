package roomclient

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/room"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type SnapshotCallback func(r *room.Room)

type StateCallback func(state State)

type snapshotEntry struct {
	id       int
	callback SnapshotCallback
}

type stateEntry struct {
	id       int
	callback StateCallback
}

// Stream follows one room's snapshot stream and redials after the connection
// drops. The server sends the current snapshot on every (re)connect, so a
// reconnect never leaves callers on a stale state.
type Stream struct {
	wsURL string

	conn  *websocket.Conn
	connM sync.Mutex

	state  State
	stateM sync.RWMutex

	snapCbs  []snapshotEntry
	stateCbs []stateEntry
	nextCbID int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func NewStream(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *Stream {
	if reconnectDelay <= 0 {
		reconnectDelay = 100 * time.Millisecond
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Stream{
		wsURL:                wsURL,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              rootCtx,
		rootCancel:           rootCancel,
	}
}

func (s *Stream) State() State {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

func (s *Stream) Connect(ctx context.Context) error {
	switch s.State() {
	case StateConnected, StateConnecting, StateReconnecting:
		return nil
	}
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := s.dial(dialCtx)
	if err != nil {
		s.setState(StateFailed)
		s.scheduleReconnect()
		return err
	}
	s.start(conn)
	return nil
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.buildHeaders(),
	})
	return conn, err
}

func (s *Stream) start(conn *websocket.Conn) {
	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StateConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
}

func (s *Stream) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var snap room.Room
		if err := wsjson.Read(s.rootCtx, conn, &snap); err != nil {
			if s.isStopping() {
				return
			}
			obslog.L().Debug("room_stream_read_error", zap.String("url", s.wsURL), zap.Error(err))
			s.dropConn(conn, "reconnect")
			return
		}

		s.cbM.RLock()
		callbacks := make([]snapshotEntry, len(s.snapCbs))
		copy(callbacks, s.snapCbs)
		s.cbM.RUnlock()
		for _, entry := range callbacks {
			r := snap
			entry.callback(&r)
		}
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			if !s.current(conn) {
				return
			}
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if !s.isStopping() {
					s.dropConn(conn, "ping failure")
				}
				return
			}
		}
	}
}

func (s *Stream) current(conn *websocket.Conn) bool {
	s.connM.Lock()
	defer s.connM.Unlock()
	return s.conn == conn
}

// dropConn closes conn and schedules a redial unless another goroutine
// already did so for the same connection.
func (s *Stream) dropConn(conn *websocket.Conn, reason string) {
	s.connM.Lock()
	if s.conn != conn {
		s.connM.Unlock()
		return
	}
	s.conn = nil
	s.connM.Unlock()

	_ = conn.Close(websocket.StatusGoingAway, reason)
	s.setState(StateDisconnected)
	s.scheduleReconnect()
}

func (s *Stream) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 || s.isStopping() {
		return
	}
	s.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(s.reconnectBackoff(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(s.rootCtx, 10*time.Second)
			conn, err := s.dial(dialCtx)
			cancel()
			if err != nil {
				obslog.L().Debug("room_stream_redial_error", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if s.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			s.start(conn)
			return
		}
		obslog.L().Warn("room_stream_gave_up", zap.String("url", s.wsURL), zap.Int("attempts", s.maxReconnectAttempts))
		s.setState(StateFailed)
	}()
}

func (s *Stream) reconnectBackoff(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * s.reconnectDelay
}

func (s *Stream) OnSnapshot(cb SnapshotCallback) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCbID++
	if cb != nil {
		s.snapCbs = append(s.snapCbs, snapshotEntry{id: s.nextCbID, callback: cb})
	}
	return s.nextCbID
}

func (s *Stream) RemoveSnapshotCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, cb := range s.snapCbs {
		if cb.id == id {
			s.snapCbs = append(s.snapCbs[:i], s.snapCbs[i+1:]...)
			break
		}
	}
}

func (s *Stream) OnStateChange(cb StateCallback) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCbID++
	if cb != nil {
		s.stateCbs = append(s.stateCbs, stateEntry{id: s.nextCbID, callback: cb})
	}
	return s.nextCbID
}

func (s *Stream) RemoveStateCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, cb := range s.stateCbs {
		if cb.id == id {
			s.stateCbs = append(s.stateCbs[:i], s.stateCbs[i+1:]...)
			break
		}
	}
}

func (s *Stream) setState(state State) {
	s.stateM.Lock()
	s.state = state
	s.stateM.Unlock()

	s.cbM.RLock()
	callbacks := make([]stateEntry, len(s.stateCbs))
	copy(callbacks, s.stateCbs)
	s.cbM.RUnlock()
	for _, entry := range callbacks {
		entry.callback(state)
	}
}

// Close stops redialing, closes the connection and waits for the reader.
func (s *Stream) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.connM.Lock()
	conn := s.conn
	s.conn = nil
	s.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.rootCancel()
		s.setState(StateDisconnected)
		return nil
	}
}

func (s *Stream) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// SetHeaderProvider allows injecting headers into the handshake.
func (s *Stream) SetHeaderProvider(h HeaderProvider) {
	s.headerProvider = h
}

func (s *Stream) buildHeaders() http.Header {
	hdr := http.Header{}
	if s.headerProvider == nil {
		return hdr
	}
	for k, v := range s.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
