package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter wires the four /kasa endpoints behind the shared
// middleware chain. CORS, static file serving, and auth are the
// fronting proxy's concern and are not modelled here.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/kasa", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/set", s.handleSet)
		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handlePostConfig)
	})

	return r
}
