package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-rooms/internal/chessgame"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/room"
	"github.com/park285/cheese-rooms/internal/session"
	"go.uber.org/zap"
)

// CreateRequest opens a room. Settings follows the pending game configuration
// field names (hostHasWhite, useClock, startTimeMinutes, ...).
type CreateRequest struct {
	Nickname      string          `json:"nickname"`
	StartPosition string          `json:"startPosition,omitempty"`
	Origin        *string         `json:"origin,omitempty"`
	Settings      json.RawMessage `json:"settings,omitempty"`
}

type JoinRequest struct {
	Nickname string `json:"nickname"`
}

// RoomRef is returned by create and join.
type RoomRef struct {
	RoomID string `json:"roomId"`
	DocID  string `json:"docId"`
}

type PositionBody struct {
	FEN  string `json:"fen"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type ClockBody struct {
	WhiteTicks        int  `json:"whiteTicks"`
	BlackTicks        int  `json:"blackTicks"`
	WhiteClockRunning bool `json:"whiteClockRunning"`
}

type OutcomeBody struct {
	Result string `json:"result"`
	Method string `json:"method,omitempty"`
}

// PatchRequest is a partial room update. Move is a UCI move played from the
// room's current position; the server derives the position, history entry,
// clock switch and outcome from it.
type PatchRequest struct {
	Move        string                  `json:"move,omitempty"`
	Position    *PositionBody           `json:"position,omitempty"`
	History     []chessgame.HistoryNode `json:"history,omitempty"`
	Clock       *ClockBody              `json:"clock,omitempty"`
	Outcome     *OutcomeBody            `json:"outcome,omitempty"`
	GameStarted *bool                   `json:"gameStarted,omitempty"`
	Fields      map[string]any          `json:"fields,omitempty"`
}

func roomRef(r *http.Request) room.Ref {
	return room.Ref{
		RoomID: chi.URLParam(r, "roomId"),
		DocID:  strings.TrimSpace(r.URL.Query().Get("docId")),
	}
}

// tab returns the caller's session storage, minting a tab id when the
// request carries none. It returns nil when the server keeps no sessions.
func (s *Server) tab(w http.ResponseWriter, r *http.Request) session.Storage {
	if s.tabs == nil {
		return nil
	}
	id := strings.TrimSpace(r.Header.Get(TabHeader))
	if id == "" {
		id = session.NewTabID()
	}
	w.Header().Set(TabHeader, id)
	return s.tabs(id)
}

func (s *Server) loadRoomState(ctx context.Context, st session.Storage) *session.RoomState {
	local := session.DefaultRoomState()
	if st == nil {
		return local
	}
	if err := local.Load(ctx, st); err != nil {
		obslog.L().Warn("session_load_error", zap.Error(err))
		return session.DefaultRoomState()
	}
	return local
}

func saveRoomState(ctx context.Context, st session.Storage, local *session.RoomState) {
	if st == nil {
		return
	}
	if err := local.Save(ctx, st); err != nil {
		obslog.L().Warn("session_save_error", zap.String("room_id", local.RoomID), zap.Error(err))
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := readJSON(r, &req); err != nil {
		s.writeBadRequest(w, r, kindBadRequest, keyBadRequest, err)
		return
	}
	ctx := r.Context()
	st := s.tab(w, r)

	var opts []room.CreateOption
	switch {
	case len(req.Settings) > 0 && string(req.Settings) != "null":
		settings := session.DefaultNewGameState()
		if err := json.Unmarshal(req.Settings, settings); err != nil {
			s.writeBadRequest(w, r, kindBadRequest, keyBadRequest, err)
			return
		}
		opts = append(opts, room.WithGameSettings(settings))
	case st != nil:
		// fall back to the configuration the tab saved while picking options
		settings := session.DefaultNewGameState()
		if err := settings.Load(ctx, st); err != nil {
			obslog.L().Warn("session_load_error", zap.Error(err))
		} else {
			opts = append(opts, room.WithGameSettings(settings))
		}
	}
	if req.StartPosition != "" {
		opts = append(opts, room.WithStartPosition(req.StartPosition))
	}
	if req.Origin != nil {
		opts = append(opts, room.WithOrigin(*req.Origin))
	}

	h, err := s.rooms.CreateRoom(ctx, req.Nickname, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if st != nil {
		local := s.loadRoomState(ctx, st)
		h.Remember(local)
		saveRoomState(ctx, st, local)
	}
	writeJSON(w, http.StatusCreated, RoomRef{RoomID: h.RoomID, DocID: h.DocID})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := readJSON(r, &req); err != nil {
		s.writeBadRequest(w, r, kindBadRequest, keyBadRequest, err)
		return
	}
	ctx := r.Context()
	st := s.tab(w, r)

	// the response needs the doc id even when the tab already knows another room
	joined := session.DefaultRoomState()
	if err := s.rooms.JoinRoom(ctx, joined, req.Nickname, chi.URLParam(r, "roomId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if st != nil {
		local := s.loadRoomState(ctx, st)
		local.SetRoomID(joined.RoomID)
		local.SetDocID(joined.DocID)
		local.StartPosition = joined.StartPosition
		saveRoomState(ctx, st, local)
	}
	writeJSON(w, http.StatusOK, RoomRef{RoomID: joined.RoomID, DocID: joined.DocID})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	rm, err := s.rooms.ReadRoom(r.Context(), roomRef(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if err := readJSON(r, &req); err != nil {
		s.writeBadRequest(w, r, kindBadRequest, keyBadRequest, err)
		return
	}
	ctx := r.Context()
	ref := roomRef(r)

	var ups []room.Update
	if req.Move != "" {
		moveUps, err := s.moveUpdates(ctx, ref, req.Move)
		if err != nil {
			if errors.Is(err, chessgame.ErrIllegalMove) || errors.Is(err, chessgame.ErrGameOver) || errors.Is(err, chessgame.ErrInvalidFEN) {
				s.writeBadRequest(w, r, kindIllegalMove, keyIllegalMove, err)
				return
			}
			s.writeError(w, r, err)
			return
		}
		ups = append(ups, moveUps...)
	}
	if p := req.Position; p != nil {
		ups = append(ups, room.PositionUpdate{FEN: p.FEN, LastMoveFrom: p.From, LastMoveTo: p.To})
	}
	if len(req.History) > 0 {
		ups = append(ups, room.HistoryAppend{Nodes: req.History})
	}
	if c := req.Clock; c != nil {
		ups = append(ups, room.ClockUpdate{WhiteTicks: c.WhiteTicks, BlackTicks: c.BlackTicks, WhiteRunning: c.WhiteClockRunning})
	}
	if o := req.Outcome; o != nil {
		ups = append(ups, room.OutcomeUpdate{Result: o.Result, Method: o.Method})
	}
	if req.GameStarted != nil {
		ups = append(ups, room.GameStartedUpdate{Started: *req.GameStarted})
	}
	if len(req.Fields) > 0 {
		ups = append(ups, room.Fields(req.Fields))
	}

	if err := s.rooms.UpdateRoom(ctx, ref, ups...); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveUpdates(ctx context.Context, ref room.Ref, uci string) ([]room.Update, error) {
	rm, err := s.rooms.ReadRoom(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rm.Finished() {
		return nil, chessgame.ErrGameOver
	}
	res, err := chessgame.ApplyMove(rm.Position(), uci)
	if err != nil {
		return nil, err
	}
	ups := room.MoveUpdates(res)
	if rm.WithClock && rm.Outcome == "" {
		clk := rm.Clock()
		clk.Switch()
		ups = append(ups, room.ClockFrom(clk))
	}
	return ups, nil
}
