package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{StatusPendingSubmit, StatusNew, true},
		{StatusPendingSubmit, StatusRejected, true},
		{StatusNew, StatusPartiallyFilled, true},
		{StatusNew, StatusFilled, true},
		{StatusNew, StatusCanceled, true},
		{StatusPartiallyFilled, StatusPartiallyFilled, true},
		{StatusPartiallyFilled, StatusFilled, true},
		{StatusPartiallyFilled, StatusCanceled, true},
		{StatusPartiallyFilled, StatusNew, false},
		{StatusFilled, StatusCanceled, false},
		{StatusCanceled, StatusNew, false},
		{StatusRejected, StatusFilled, false},
		{StatusNew, StatusNew, false},
	}

	for _, c := range cases {
		assert.Equalf(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPositionApplyFill(t *testing.T) {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	t.Run("open and scale in", func(t *testing.T) {
		p := Position{Symbol: "BTCUSDT"}

		p.ApplyFill(SideBuy, d("1"), d("100"))
		assert.True(t, p.NetQuantity.Equal(d("1")))
		assert.True(t, p.AvgEntryPrice.Equal(d("100")))

		p.ApplyFill(SideBuy, d("1"), d("200"))
		assert.True(t, p.NetQuantity.Equal(d("2")))
		assert.True(t, p.AvgEntryPrice.Equal(d("150")))
	})

	t.Run("reduce keeps entry price", func(t *testing.T) {
		p := Position{Symbol: "BTCUSDT"}
		p.ApplyFill(SideBuy, d("2"), d("150"))
		p.ApplyFill(SideSell, d("1"), d("300"))

		assert.True(t, p.NetQuantity.Equal(d("1")))
		assert.True(t, p.AvgEntryPrice.Equal(d("150")))
	})

	t.Run("full close resets entry price", func(t *testing.T) {
		p := Position{Symbol: "BTCUSDT"}
		p.ApplyFill(SideBuy, d("2"), d("150"))
		p.ApplyFill(SideSell, d("2"), d("300"))

		assert.True(t, p.NetQuantity.IsZero())
		assert.True(t, p.AvgEntryPrice.IsZero())
	})

	t.Run("flip through zero", func(t *testing.T) {
		p := Position{Symbol: "BTCUSDT"}
		p.ApplyFill(SideBuy, d("1"), d("100"))
		p.ApplyFill(SideSell, d("3"), d("120"))

		assert.True(t, p.NetQuantity.Equal(d("-2")))
		assert.True(t, p.AvgEntryPrice.Equal(d("120")))
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassFatal, Classify(&ExchangeError{Code: CodeInvalidAPIKey}))
	assert.Equal(t, ClassFatal, Classify(&ExchangeError{Code: CodeInvalidSignature}))
	assert.Equal(t, ClassRejected, Classify(&ExchangeError{Code: CodeOrderRejected}))
	assert.Equal(t, ClassRejected, Classify(&ExchangeError{Code: CodeInvalidQuantity}))
	assert.Equal(t, ClassTransient, Classify(&ExchangeError{Code: CodeTooManyRequests}))
	assert.Equal(t, ClassAmbiguous, Classify(errors.Wrap(ErrAmbiguous, "place order")))
}

func TestIsUnknownOrder(t *testing.T) {
	err := errors.Wrap(&ExchangeError{Code: CodeCancelRejected, Msg: "Unknown order sent."}, "cancel")
	assert.True(t, IsUnknownOrder(err))
	assert.False(t, IsUnknownOrder(&ExchangeError{Code: CodeOrderRejected}))
}
