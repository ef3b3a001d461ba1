// Package httpapi wires the HTTP surface of the ledger service.
// Handlers stay thin: they decode the request, call exactly one engine
// operation and map the result or error kind onto a response.
package httpapi

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server wires handlers and middleware using Chi.
type Server struct {
	accounts AccountService
	journal  JournalService
	ready    Readier
	idem     *idempotencyCache
	log      *slog.Logger
	rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware. ready may be nil,
// in which case /readyz always succeeds.
func New(accounts AccountService, journal JournalService, ready Readier, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(metricsMiddleware)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))

	s := &Server{
		accounts: accounts,
		journal:  journal,
		ready:    ready,
		idem:     newIdempotencyCache(defaultIdempotencyEntries),
		log:      logger,
		rt:       r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

func (s *Server) routes() {
	s.rt.Route("/api", func(r chi.Router) {
		r.Get("/accounts", s.listAccounts)
		r.With(s.idempotent).Post("/accounts", s.postAccount)
		r.Get("/accounts/by-number/{number}", s.getAccountByNumber)
		r.Get("/accounts/{id}", s.getAccount)
		r.With(s.idempotent).Post("/accounts/{id}/deposit", s.postDeposit)
		r.With(s.idempotent).Post("/accounts/{id}/withdraw", s.postWithdraw)
		r.Get("/accounts/{id}/transactions", s.listAccountTransactions)
		r.Get("/accounts/{id}/reconciliation", s.getReconciliation)
		r.With(s.idempotent).Post("/transfers", s.postTransfer)
		r.Get("/transactions/{id}", s.getTransaction)
		r.Get("/openapi.yaml", s.openapiSpec)
	})
	// Health (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
