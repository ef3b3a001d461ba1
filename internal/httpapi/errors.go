package httpapi

import (
	"context"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, errs.KindOf(errs.ErrInvalid))
}

// fail maps an engine error onto a response. Known kinds carry their message
// to the client; anything else is logged and reported as an opaque 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.KindOf(err)
	switch {
	case errors.Is(err, errs.ErrInvalid), errors.Is(err, errs.ErrInsufficientFunds):
		writeErr(w, http.StatusBadRequest, err.Error(), code)
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error(), code)
	case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrStale):
		writeErr(w, http.StatusConflict, err.Error(), code)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusServiceUnavailable, "request canceled", "unavailable")
	default:
		s.log.Error("request failed", "req_id", chimw.GetReqID(r.Context()), "method", r.Method, "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", code)
	}
}
