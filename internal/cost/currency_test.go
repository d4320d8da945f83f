package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripeCentsRoundTripTwoDecimalCurrency(t *testing.T) {
	decimal, err := StripeCentsToDecimal(1050, "USD")
	require.NoError(t, err)
	assert.Equal(t, 10.50, decimal)

	cents, err := DecimalToStripeCents(decimal, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1050), cents)
}

func TestStripeCentsRoundTripZeroDecimalCurrency(t *testing.T) {
	decimal, err := StripeCentsToDecimal(500, "JPY")
	require.NoError(t, err)
	assert.Equal(t, 500.0, decimal)

	cents, err := DecimalToStripeCents(decimal, "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(500), cents)
}

func TestDecimalToStripeCentsRejectsNegative(t *testing.T) {
	_, err := DecimalToStripeCents(-1, "USD")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStripeCentsToDecimalRejectsEmptyCurrency(t *testing.T) {
	_, err := StripeCentsToDecimal(100, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
