package application

import (
	"context"

	"github.com/orderflow/fulfillment/internal/order/domain"
)

type OrderRepository interface {
	// SaveWithOutbox persists the order, its items and the outbox event row in
	// a single transaction.
	SaveWithOutbox(ctx context.Context, o domain.Order, eventType string, payload []byte, headers map[string]string, traceparent string) error
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	// Transition moves the order to next under a row lock, validating against
	// the lifecycle table. Moving a CANCELLED order to CANCELLED is a no-op.
	Transition(ctx context.Context, id string, next domain.OrderStatus) (domain.Order, error)
}

type ProductClient interface {
	Get(ctx context.Context, id string) (domain.ProductSnapshot, error)
}

type CustomerClient interface {
	// Exists returns nil when the customer exists, domain.ErrCustomerNotFound
	// when it does not, and domain.ErrUpstreamUnavailable when the customer
	// service cannot be reached.
	Exists(ctx context.Context, id string) error
}
