// Package money holds the currency rules shared by the ledger, the pending
// payment snapshot and the gateway adapters.
package money

import (
	"strings"

	"github.com/cassiomorais/storepay/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// zeroDecimal lists ISO-4217 currencies whose minor unit equals the major unit.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// Exponent returns the number of minor-unit digits for the currency.
func Exponent(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// FromMinorUnits converts an integer amount in minor units (cents) to major units.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}

// ToMinorUnits converts a major-unit amount to an integer amount in minor units.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(Exponent(currency)).Round(0).IntPart()
}

// Round rounds an amount to the currency's minor unit.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Exponent(currency))
}

// Within reports whether a and b differ by at most tolerance.
func Within(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// ValidateCurrency checks for a three-letter upper-case code.
func ValidateCurrency(currency string) error {
	if len(currency) != 3 || strings.ToUpper(currency) != currency {
		return errors.NewValidationError("currency", "must be a 3-letter upper-case ISO code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return errors.NewValidationError("currency", "must be a 3-letter upper-case ISO code")
		}
	}
	return nil
}

// ValidatePositive checks that an amount is strictly greater than zero.
func ValidatePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.NewValidationError(field, "must be greater than 0")
	}
	return nil
}
