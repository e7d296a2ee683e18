package application

import "context"

// StockAdjuster performs the conditional remote decrement. ok=false means
// the product had insufficient stock and nothing changed. The idempotency key
// identifies the (event, item) pair so the remote side can deduplicate a
// redelivered decrement.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, idempotencyKey, productID string, quantity int) (bool, error)
}

// AppliedSet remembers which (event, item) pairs have already been applied,
// so redelivery of the same event never decrements twice.
type AppliedSet interface {
	ItemKey(eventID, productID string) string
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
