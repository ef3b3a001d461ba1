package httpapi

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const readyTimeout = 800 * time.Millisecond

//go:embed openapi.yaml
var openapiDoc []byte

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

// readyz pings the store with a short timeout.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.ready.Ready(ctx); err != nil {
		s.log.Warn("store not ready", "req_id", chimw.GetReqID(r.Context()), "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// openapiSpec serves the embedded OpenAPI document.
func (s *Server) openapiSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiDoc)
}
