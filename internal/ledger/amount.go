package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/errs"
)

// AmountScale is the number of fractional digits every ledger amount carries.
const AmountScale = 2

// DefaultCurrency is used when no ledger currency is configured.
const DefaultCurrency = "USD"

// MaxMinorUnits bounds the magnitude of every amount and balance the ledger
// holds, in cents. It fits int64 and a DECIMAL(18,2) column alike.
const MaxMinorUnits int64 = 999_999_999_999_999_999

// MaxAmount is MaxMinorUnits written as a decimal.
const MaxAmount = "9999999999999999.99"

// ErrAmountRange reports an amount or balance beyond MaxAmount.
var ErrAmountRange = errors.New("amount exceeds the maximum of " + MaxAmount)

var (
	errAmountSyntax    = errors.New("amount is not a decimal number")
	errAmountPrecision = errors.New("amount has more than 2 fractional digits")
)

// ParseCurrency validates a ledger currency code. Only currencies with two
// minor-unit digits are accepted.
func ParseCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	curr, err := money.ParseCurr(code)
	if err != nil {
		return "", fmt.Errorf("currency %q: %w", code, err)
	}
	if curr.Scale() != AmountScale {
		return "", fmt.Errorf("currency %q has %d minor digits, want %d", code, curr.Scale(), AmountScale)
	}
	return curr.Code(), nil
}

// ParseAmount converts a decimal string into an amount of curr. It never rounds:
// inputs with more than two significant fractional digits are rejected.
func ParseAmount(curr, s string) (money.Amount, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.Parse(s)
	if err != nil {
		return money.Amount{}, errAmountSyntax
	}
	if d.Trim(0).Scale() > AmountScale {
		return money.Amount{}, errAmountPrecision
	}
	a, err := money.ParseAmount(curr, d.Trim(0).String())
	if err != nil {
		return money.Amount{}, err
	}
	if !InRange(a) {
		return money.Amount{}, ErrAmountRange
	}
	return a, nil
}

// HasLedgerScale reports whether a carries no more than two significant
// fractional digits.
func HasLedgerScale(a money.Amount) bool {
	return a.Decimal().Trim(0).Scale() <= AmountScale
}

// ZeroAmount returns 0.00 in curr.
func ZeroAmount(curr string) money.Amount {
	a, _ := money.NewAmountFromMinorUnits(curr, 0)
	return a
}

// MustAmount builds an amount from minor units, panicking on an unknown currency.
func MustAmount(curr string, units int64) money.Amount {
	a, err := money.NewAmountFromMinorUnits(curr, units)
	if err != nil {
		panic(err)
	}
	return a
}

// ToMinorUnits returns the amount in cents, or ErrAmountRange when its
// magnitude exceeds MaxMinorUnits.
func ToMinorUnits(a money.Amount) (int64, error) {
	units, ok := a.MinorUnits()
	if !ok || units > MaxMinorUnits || units < -MaxMinorUnits {
		return 0, ErrAmountRange
	}
	return units, nil
}

// InRange reports whether a lies within the ledger maximum.
func InRange(a money.Amount) bool {
	_, err := ToMinorUnits(a)
	return err == nil
}

// StoredUnits returns a in cents for persistence. Negative and out-of-range
// values are refused with errs.ErrInvalid.
func StoredUnits(a money.Amount) (int64, error) {
	units, err := ToMinorUnits(a)
	if err != nil {
		return 0, errs.Wrap(errs.ErrInvalid, err.Error())
	}
	if units < 0 {
		return 0, errs.Wrap(errs.ErrInvalid, "negative amount "+FormatAmount(a)+" cannot be stored")
	}
	return units, nil
}

// MinorUnits returns the amount in cents. It panics when a is out of range,
// so callers must only pass amounts that went through ParseAmount, InRange
// or ToMinorUnits.
func MinorUnits(a money.Amount) int64 {
	units, err := ToMinorUnits(a)
	if err != nil {
		panic(fmt.Sprintf("ledger: %s: %v", a, err))
	}
	return units
}

// FormatAmount renders a with exactly two fractional digits, without currency.
func FormatAmount(a money.Amount) string {
	return a.Decimal().Trim(AmountScale).Pad(AmountScale).String()
}
