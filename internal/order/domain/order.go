package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusPaid      OrderStatus = "PAID"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// allowedTransitions is the single source of truth for the order lifecycle.
// Both UpdateStatus and Cancel consult it; DELIVERED and CANCELLED are terminal.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusCreated:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

func ValidStatus(s OrderStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether from->to is a legal lifecycle move.
func CanTransition(from, to OrderStatus) bool {
	next := allowedTransitions[from]
	return next != nil && next[to]
}

type Order struct {
	ID          string
	CustomerID  string
	OrderDate   time.Time
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Items       []OrderItem
}

// OrderItem is owned by its Order. ProductName and UnitPrice are snapshots
// taken at creation time; later product changes never touch them.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// ProductSnapshot is the transient view returned by the product service.
// Only Name and Price are copied into an OrderItem; nothing here is persisted.
type ProductSnapshot struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
}

// NewOrder builds a CREATED order and computes the total as the exact
// decimal sum of unit price times quantity.
func NewOrder(customerID string, items []OrderItem) Order {
	total := decimal.Zero
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		total = total.Add(items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity))))
	}
	return Order{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		OrderDate:   time.Now().UTC(),
		Status:      StatusCreated,
		TotalAmount: total,
		Items:       items,
	}
}
