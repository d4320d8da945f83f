package cost

import (
	"fmt"
	"math"

	"github.com/foundryhq/jobengine/internal/models"
)

// StripeCentsToDecimal converts an amount in a currency's smallest unit
// (cents for USD, yen for JPY) to its major-unit decimal value. Zero-decimal
// currencies pass through unchanged; two-decimal currencies divide by 100.
func StripeCentsToDecimal(amountCents int64, currency string) (float64, error) {
	if currency == "" {
		return 0, fmt.Errorf("%w: currency code cannot be empty", ErrInvalidInput)
	}
	if models.IsZeroDecimalCurrency(currency) {
		return float64(amountCents), nil
	}
	return float64(amountCents) / 100, nil
}

// DecimalToStripeCents converts a major-unit decimal amount to a currency's
// smallest unit, the inverse of StripeCentsToDecimal. Negative amounts are
// rejected: a charge or balance can never be expressed as negative cents.
func DecimalToStripeCents(amount float64, currency string) (int64, error) {
	if currency == "" {
		return 0, fmt.Errorf("%w: currency code cannot be empty", ErrInvalidInput)
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: amount cannot be negative: %v", ErrInvalidInput, amount)
	}
	rounded := roundForCurrency(amount, currency)
	if models.IsZeroDecimalCurrency(currency) {
		return int64(math.Round(rounded)), nil
	}
	return int64(math.Round(rounded * 100)), nil
}
