package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/orderflow/fulfillment/internal/order/domain"
)

type Service struct {
	log      *slog.Logger
	products StockAdjuster
	applied  AppliedSet
}

func NewService(log *slog.Logger, products StockAdjuster, applied AppliedSet) *Service {
	return &Service{log: log, products: products, applied: applied}
}

// Apply decrements stock for every line item of an order-created event.
// Each item is claimed in the applied-set before the decrement so a
// redelivered event only retries the items that failed last time. A failed
// item does not stop the remaining items; the collected error tells the
// consumer whether to redeliver.
func (s *Service) Apply(ctx context.Context, eventID string, ev domain.OrderCreated) error {
	var errs []error
	for _, item := range ev.Items {
		key := s.applied.ItemKey(eventID, item.ProductID)

		won, err := s.applied.Claim(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim %s: %w", key, err))
			continue
		}
		if !won {
			s.log.InfoContext(ctx, "item already applied, skipping",
				"order_id", ev.OrderID, "product_id", item.ProductID)
			continue
		}

		ok, err := s.products.AdjustStock(ctx, key, item.ProductID, item.Quantity)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			// Permanent: the product is gone, retrying cannot help.
			s.log.ErrorContext(ctx, "stock decrement skipped, product missing",
				"order_id", ev.OrderID, "product_id", item.ProductID)
		case err != nil:
			// Retryable: release the claim so a redelivery tries again.
			_ = s.applied.Release(ctx, key)
			errs = append(errs, fmt.Errorf("product %s: %w", item.ProductID, err))
		case !ok:
			s.log.WarnContext(ctx, "stock decrement rejected, insufficient stock",
				"order_id", ev.OrderID, "product_id", item.ProductID, "quantity", item.Quantity)
		default:
			s.log.InfoContext(ctx, "stock decremented",
				"order_id", ev.OrderID, "product_id", item.ProductID, "quantity", item.Quantity)
		}
	}
	return errors.Join(errs...)
}
