package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	cur, err := ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyUSD, cur)

	_, err = ParseCurrency("XYZ")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}
