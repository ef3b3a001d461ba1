package accountno

import (
	"errors"
	"strings"
	"testing"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

func TestNormalize(t *testing.T) {
	if got := Normalize("  ACC-001\t"); got != "ACC-001" {
		t.Fatalf("unexpected normalized value %q", got)
	}
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"A", "ACC-001", strings.Repeat("9", 32), "Konto-ü"} {
		if err := Validate(ok); err != nil {
			t.Fatalf("Validate(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", strings.Repeat("9", 33), "ACC\n1", "bad\x00"} {
		if err := Validate(bad); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("Validate(%q): expected ErrInvalid, got %v", bad, err)
		}
	}
}
