package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapMatchesKind(t *testing.T) {
	err := Wrap(ErrNotFound, "from account not found")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrInvalid) {
		t.Fatalf("unexpected match on ErrInvalid")
	}
	if err.Error() != "from account not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if Wrap(ErrInvalid, "").Error() != "invalid_argument" {
		t.Fatalf("empty message should fall back to kind")
	}
}

func TestKindOf(t *testing.T) {
	cases := map[string]error{
		"ok":                 nil,
		"invalid_argument":   Wrap(ErrInvalid, "amount must be > 0"),
		"not_found":          fmt.Errorf("load: %w", ErrNotFound),
		"already_exists":     ErrConflict,
		"insufficient_funds": ErrInsufficientFunds,
		"concurrent_update":  fmt.Errorf("update accounts: %w", ErrStale),
		"internal":           errors.New("boom"),
	}
	for want, err := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("KindOf(%v) = %q, want %q", err, got, want)
		}
	}
}
