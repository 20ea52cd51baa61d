package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/room"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamWriteTimeout = 3 * time.Second

// latest holds the newest undelivered snapshot. Offers never block, so a slow
// socket only ever sees the most recent state.
type latest struct {
	mu    sync.Mutex
	snap  *room.Room
	seen  bool
	ready chan struct{}
}

func newLatest() *latest { return &latest{ready: make(chan struct{}, 1)} }

func (l *latest) offer(r *room.Room) { l.put(r, true) }

// offerInitial is dropped once a pushed snapshot has arrived, since that one is newer.
func (l *latest) offerInitial(r *room.Room) { l.put(r, false) }

func (l *latest) put(r *room.Room, pushed bool) {
	l.mu.Lock()
	if !pushed && l.seen {
		l.mu.Unlock()
		return
	}
	l.snap = r
	l.seen = true
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latest) take() *room.Room {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.snap
	l.snap = nil
	return r
}

// handleStream sends the current snapshot, then every later one, as JSON text
// frames. Anything the peer sends is ignored.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ref := roomRef(r)
	slot := newLatest()

	subCtx, cancelSub := context.WithCancel(r.Context())
	defer cancelSub()
	unsub, err := s.rooms.SubscribeToRoom(subCtx, ref, slot.offer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer unsub()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("room_id", ref.RoomID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(subCtx)

	initial, err := s.rooms.ReadRoom(ctx, ref)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "read failed")
		return
	}
	slot.offerInitial(initial)
	obslog.L().Debug("ws_stream_open", zap.String("room_id", ref.RoomID), zap.String("doc_id", initial.DocID))

	for {
		select {
		case <-ctx.Done():
			obslog.L().Debug("ws_stream_closed", zap.String("room_id", ref.RoomID))
			return
		case <-slot.ready:
			snap := slot.take()
			if snap == nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, snap)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_error", zap.String("room_id", ref.RoomID), zap.Error(err))
				return
			}
		}
	}
}
