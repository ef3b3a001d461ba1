package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

// maxBodyBytes caps request bodies; the largest legitimate body is a transfer
// with a full metadata map.
const maxBodyBytes = 64 << 10

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads exactly one JSON object into v, rejecting unknown fields and
// trailing data.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Wrap(errs.ErrInvalid, "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return errs.Wrap(errs.ErrInvalid, "request body is required")
		}
		return errs.Wrap(errs.ErrInvalid, "invalid JSON: "+err.Error())
	}
	if dec.More() {
		return errs.Wrap(errs.ErrInvalid, "invalid JSON: unexpected data after object")
	}
	return nil
}
