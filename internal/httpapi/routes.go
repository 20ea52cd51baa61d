package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes(r chi.Router) {
	r.Get("/healthz", healthz)

	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", s.handleRead)
			r.Patch("/", s.handleUpdate)
			r.Post("/join", s.handleJoin)
			r.Get("/ws", s.handleStream)
		})
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
