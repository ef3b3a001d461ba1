package ledger

import (
	"errors"
	"testing"

	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

func TestParseAmount(t *testing.T) {
	ok := map[string]int64{
		"100":     10000,
		"0.01":    1,
		"12.5":    1250,
		"12.50":   1250,
		"12.5000": 1250,
		" 7.25 ":  725,
		"0":       0,
	}
	for in, want := range ok {
		a, err := ParseAmount("USD", in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", in, err)
		}
		if got := MinorUnits(a); got != want {
			t.Fatalf("ParseAmount(%q) = %d minor, want %d", in, got, want)
		}
	}
	for _, in := range []string{"", "abc", "1.005", "0.001", "1,00"} {
		if _, err := ParseAmount("USD", in); err == nil {
			t.Fatalf("ParseAmount(%q): expected error", in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{0: "0.00", 1: "0.01", 12550: "125.50", -40: "-0.40"}
	for units, want := range cases {
		if got := FormatAmount(MustAmount("USD", units)); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", units, got, want)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	if c, err := ParseCurrency(""); err != nil || c != "USD" {
		t.Fatalf("default currency: %q %v", c, err)
	}
	if c, err := ParseCurrency("gbp"); err != nil || c != "GBP" {
		t.Fatalf("gbp: %q %v", c, err)
	}
	if _, err := ParseCurrency("JPY"); err == nil {
		t.Fatalf("JPY has no minor units and must be rejected")
	}
	if _, err := ParseCurrency("NOPE"); err == nil {
		t.Fatalf("unknown currency must be rejected")
	}
}

func TestAmountRange(t *testing.T) {
	top, err := ParseAmount("USD", MaxAmount)
	if err != nil {
		t.Fatalf("ParseAmount(MaxAmount): %v", err)
	}
	if got := MinorUnits(top); got != MaxMinorUnits {
		t.Fatalf("MinorUnits(MaxAmount) = %d, want %d", got, MaxMinorUnits)
	}
	for _, in := range []string{"10000000000000000", "94000000000000000.00", "-10000000000000000"} {
		if _, err := ParseAmount("USD", in); !errors.Is(err, ErrAmountRange) {
			t.Fatalf("ParseAmount(%q): expected range error, got %v", in, err)
		}
	}

	big := money.MustParseAmount("USD", "94000000000000000.00")
	if InRange(big) {
		t.Fatalf("%s reported in range", big)
	}
	if _, err := ToMinorUnits(big); !errors.Is(err, ErrAmountRange) {
		t.Fatalf("ToMinorUnits: expected range error, got %v", err)
	}
	if got := FormatAmount(big); got != "94000000000000000.00" {
		t.Fatalf("FormatAmount = %q", got)
	}
}

func TestStoredUnits(t *testing.T) {
	if units, err := StoredUnits(MustAmount("USD", 1250)); err != nil || units != 1250 {
		t.Fatalf("StoredUnits = %d, %v", units, err)
	}
	for _, a := range []money.Amount{MustAmount("USD", -1), money.MustParseAmount("USD", "10000000000000000.00")} {
		if _, err := StoredUnits(a); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("StoredUnits(%s): expected invalid, got %v", a, err)
		}
	}
}
