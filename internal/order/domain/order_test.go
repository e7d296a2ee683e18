package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderTotal(t *testing.T) {
	items := []OrderItem{
		{ProductID: "p1", ProductName: "Widget", Quantity: 3, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "p2", ProductName: "Gadget", Quantity: 2, UnitPrice: decimal.RequireFromString("0.10")},
	}
	o := NewOrder("c1", items)

	require.Equal(t, StatusCreated, o.Status)
	require.NotEmpty(t, o.ID)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("30.20")),
		"got total %s", o.TotalAmount)
	for _, it := range o.Items {
		assert.NotEmpty(t, it.ID)
	}
}

func TestNewOrderTotalNoFloatDrift(t *testing.T) {
	// 0.1 * 3 = 0.3 exactly; float64 arithmetic would give 0.30000000000000004.
	items := []OrderItem{
		{ProductID: "p1", Quantity: 3, UnitPrice: decimal.RequireFromString("0.1")},
	}
	o := NewOrder("c1", items)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("0.3")))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusCreated, StatusPaid, true},
		{StatusCreated, StatusCancelled, true},
		{StatusCreated, StatusShipped, false},
		{StatusCreated, StatusDelivered, false},
		{StatusPaid, StatusShipped, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusDelivered, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusPaid, false},
		{StatusCancelled, StatusCreated, false},
		{StatusCancelled, StatusPaid, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []OrderStatus{StatusCreated, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled} {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus("PENDING"))
	assert.False(t, ValidStatus(""))
}
