package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair("eur/usd")
	require.NoError(t, err)
	assert.Equal(t, Pair{Base: "EUR", Quote: "USD"}, p)
	assert.Equal(t, "EUR/USD", p.String())

	_, err = ParsePair("EURUSD")
	assert.Error(t, err)
	_, err = ParsePair("EUR/")
	assert.Error(t, err)
	_, err = ParsePair("USD/USD")
	assert.Error(t, err)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("BUY")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, s)

	s, err = ParseSide("sell")
	require.NoError(t, err)
	assert.Equal(t, SideSell, s)

	_, err = ParseSide("hold")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestOrderAssets(t *testing.T) {
	o := Order{Pair: Pair{Base: "EUR", Quote: "USD"}}

	o.Side = SideBuy
	assert.Equal(t, "USD", o.FundingAsset())
	assert.Equal(t, "EUR", o.CreditAsset())

	o.Side = SideSell
	assert.Equal(t, "EUR", o.FundingAsset())
	assert.Equal(t, "USD", o.CreditAsset())
}

func TestOrderCostRoundsHalfEven(t *testing.T) {
	o := Order{
		Quantity: decimal.RequireFromString("1"),
		Price:    decimal.RequireFromString("0.12345"),
	}
	assert.Equal(t, "0.1234", o.Cost().String())

	o.Price = decimal.RequireFromString("0.12355")
	assert.Equal(t, "0.1236", o.Cost().String())

	// No mid-calculation rounding: the product is exact before the
	// boundary round.
	o.Quantity = decimal.RequireFromString("0.0001")
	o.Price = decimal.RequireFromString("0.0001")
	assert.Equal(t, "0", o.Cost().String())
}
