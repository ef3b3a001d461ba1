package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	// ErrInvalid marks malformed or out-of-range input (HTTP 400).
	ErrInvalid = errors.New("invalid_argument")
	// ErrConflict indicates a uniqueness violation, e.g. a duplicate account number.
	ErrConflict = errors.New("already_exists")
	// ErrInsufficientFunds is returned when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient_funds")
	// ErrStale indicates the record changed between load and write (optimistic token mismatch).
	ErrStale = errors.New("concurrent_update")
)

// Error attaches a human-readable message to one of the sentinel kinds.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

// Wrap returns an error that matches kind under errors.Is and reads as msg.
func Wrap(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the stable code of the sentinel wrapped by err, or "internal".
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalid):
		return ErrInvalid.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrConflict):
		return ErrConflict.Error()
	case errors.Is(err, ErrInsufficientFunds):
		return ErrInsufficientFunds.Error()
	case errors.Is(err, ErrStale):
		return ErrStale.Error()
	default:
		return "internal"
	}
}
