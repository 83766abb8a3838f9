/*
Package generic provides the domain-agnostic building blocks shared by every
engine in this module.

PURPOSE:
  The commission resolver, earnings ledger, points engine, delivery workflow,
  ad partnership engine and awards calculator all deal with the same three
  primitives: money, calendar windows and identifiers. They live here so the
  rounding rules and period boundaries are identical everywhere.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal rounded to 2 places, half away from zero
  - Rates: decimal fractions (0.10 = 10%)
  - Percentages: change and share helpers used by summaries
  - IDs: prefixed UUID strings

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64 for money
  2. One rounding rule: RoundMoney is the only place money gets rounded
  3. Injectable time: services take a Clock so tests are deterministic

USAGE:
  price := generic.MustParseDecimal("24.95")
  commission := generic.RoundMoney(price.Mul(rate)) // 7.49

SEE ALSO:
  - period.go: calendar windows (Monday weeks, months, years)
  - errors.go: error taxonomy
*/
package generic

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places money is stored and reported with.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to pennies, half away from zero (7.485 -> 7.49).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FloorPoints converts a currency amount to whole loyalty points (1 per unit,
// fraction truncated). Negative amounts yield zero.
func FloorPoints(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Floor().IntPart()
}

// PercentChange returns (current-previous)/previous*100 rounded to 2 places.
// A zero previous value yields 100 when current is positive, else 0.
func PercentChange(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous.Abs()).Mul(hundred).Round(2)
}

// PercentOf returns part/whole*100 rounded to 2 places, 0 when whole is zero.
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a prefixed random identifier, e.g. "dlv-3f2a...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock returns the current time. Services hold one so tests can pin "now".
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// NowOr returns c() or the system clock when c is nil.
func NowOr(c Clock) time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}
