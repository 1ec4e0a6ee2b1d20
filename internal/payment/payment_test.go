package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDisabledChargerRejects(t *testing.T) {
	var c Charger = DisabledCharger{}

	_, err := c.CreateSession(context.Background(), SessionRequest{
		OrderID: "o1",
		Total:   decimal.RequireFromString("55"),
	})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestLineItemAmountsAreMinorUnits(t *testing.T) {
	// 4.50 must become 450 minor units on the wire.
	price := decimal.RequireFromString("4.50")
	assert.Equal(t, int64(450), price.Shift(2).IntPart())

	// Whole amounts shift cleanly too.
	assert.Equal(t, int64(1500), decimal.RequireFromString("15").Shift(2).IntPart())
}
