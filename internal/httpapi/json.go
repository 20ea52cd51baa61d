package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/park285/cheese-rooms/internal/docstore"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/room"
	"go.uber.org/zap"
)

const (
	kindBadRequest  = "badRequest"
	kindIllegalMove = "illegalMove"

	keyBadRequest  = "errors.badRequest"
	keyIllegalMove = "pages.game.errors.illegalMove"
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	Fatal   bool   `json:"fatal"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) message(r *http.Request, key string) string {
	if s.cat == nil {
		return key
	}
	return s.cat.Text(s.cat.MatchLocale(r.Header.Get("Accept-Language")), key)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, r *http.Request, kind, key string, cause error) {
	obslog.L().Debug("http_bad_request", zap.String("kind", kind), zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(cause))
	writeJSON(w, http.StatusBadRequest, ErrorBody{Kind: kind, Key: key, Message: s.message(r, key)})
}

// writeError renders a room error. Anything else is reported as a failed read.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var re *room.Error
	if !errors.As(err, &re) {
		re = &room.Error{Op: room.OpRead, Kind: room.KindFailedReadingRoom, Fatal: true, Err: err}
	}
	writeJSON(w, statusFor(re), ErrorBody{
		Kind:    string(re.Kind),
		Key:     re.I18nKey(),
		Fatal:   re.Fatal,
		Message: s.message(r, re.I18nKey()),
	})
}

func statusFor(e *room.Error) int {
	switch e.Kind {
	case room.KindNoMatchingRoom:
		return http.StatusNotFound
	case room.KindAlreadyFilledRoom:
		return http.StatusConflict
	}
	if !e.Fatal {
		return http.StatusBadRequest
	}
	// a missing document or a store without push is our own fault, not the upstream's
	if errors.Is(e, docstore.ErrNotFound) || errors.Is(e, docstore.ErrUnsupported) {
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}
