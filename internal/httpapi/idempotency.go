package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tinoosan/accounts-ledger/internal/lock"
)

const (
	idempotencyHeader         = "Idempotency-Key"
	replayedHeader            = "Idempotent-Replayed"
	maxIdempotencyKeyLen      = 255
	defaultIdempotencyEntries = 10000
)

type storedResponse struct {
	BodyHash    string
	Status      int
	ContentType string
	Location    string
	Payload     []byte
}

// idempotencyCache remembers responses per scoped key. Oldest entries are
// evicted first once max is reached.
type idempotencyCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]storedResponse
	order   []string
	locks   *lock.Keyed
}

func newIdempotencyCache(limit int) *idempotencyCache {
	return &idempotencyCache{
		max:     limit,
		entries: make(map[string]storedResponse),
		locks:   lock.New(),
	}
}

func (c *idempotencyCache) get(key string) (storedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[key]
	return resp, ok
}

func (c *idempotencyCache) put(key string, resp storedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = resp
	for len(c.order) > c.max {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

// idempotent replays the stored response when a request repeats an
// Idempotency-Key with the same body. Requests sharing a key are serialized,
// so a retry racing the first request waits for it instead of applying twice.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			badRequest(w, "Idempotency-Key is too long")
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				badRequest(w, "request body too large")
				return
			}
			badRequest(w, "could not read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		scope := r.Method + " " + r.URL.Path + " " + key
		unlock, err := s.idem.locks.Lock(r.Context(), scope)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		defer unlock()

		h := hashBytes(canonicalBody(body))
		if prev, ok := s.idem.get(scope); ok {
			if prev.BodyHash != h {
				writeErr(w, http.StatusConflict, "Idempotency-Key was already used with a different request body", "idempotency_mismatch")
				return
			}
			replay(w, prev)
			return
		}

		rw := &captureWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}
		// 5xx and 409 responses are not remembered, so the same key can be
		// retried. Other client errors, insufficient_funds included, replay
		// exactly as first answered.
		if rw.status >= 500 || rw.status == http.StatusConflict {
			return
		}
		s.idem.put(scope, storedResponse{
			BodyHash:    h,
			Status:      rw.status,
			ContentType: w.Header().Get("Content-Type"),
			Location:    w.Header().Get("Location"),
			Payload:     append([]byte(nil), rw.buf...),
		})
	})
}

func replay(w http.ResponseWriter, prev storedResponse) {
	if prev.ContentType != "" {
		w.Header().Set("Content-Type", prev.ContentType)
	}
	if prev.Location != "" {
		w.Header().Set("Location", prev.Location)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(prev.Status)
	_, _ = w.Write(prev.Payload)
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    []byte
}

func (w *captureWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf = append(w.buf, b...)
	return w.ResponseWriter.Write(b)
}

// canonicalBody strips insignificant whitespace so formatting differences do
// not count as a different request.
func canonicalBody(b []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return b
	}
	return buf.Bytes()
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
