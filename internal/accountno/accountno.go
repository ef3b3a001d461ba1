// Package accountno normalizes and validates human-facing account numbers.
package accountno

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
)

// Normalize trims surrounding whitespace; the rest of the number is kept verbatim.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// Validate checks a normalized account number: required, at most 32 characters,
// no control characters.
func Validate(s string) error {
	if s == "" {
		return errs.Wrap(errs.ErrInvalid, "account number is required")
	}
	if utf8.RuneCountInString(s) > ledger.MaxAccountNumberLen {
		return errs.Wrap(errs.ErrInvalid, "account number must be at most 32 characters")
	}
	for _, r := range s {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return errs.Wrap(errs.ErrInvalid, "account number contains invalid characters")
		}
	}
	return nil
}
