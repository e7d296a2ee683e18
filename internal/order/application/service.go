package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/orderflow/fulfillment/internal/order/domain"
	"github.com/orderflow/fulfillment/pkg/tracing"
)

var ErrInvalidRequest = errors.New("invalid order request")

// lookupConcurrency bounds parallel product fetches per order.
const lookupConcurrency = 4

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type Service struct {
	log       *slog.Logger
	repo      OrderRepository
	products  ProductClient
	customers CustomerClient
}

func NewService(log *slog.Logger, repo OrderRepository, products ProductClient, customers CustomerClient) *Service {
	return &Service{log: log, repo: repo, products: products, customers: customers}
}

// CreateOrder validates the customer, resolves product snapshots, checks
// stock, and persists the order together with its order-created outbox event.
// Any failure leaves nothing persisted.
func (s *Service) CreateOrder(ctx context.Context, customerID string, requested []ItemRequest) (domain.Order, error) {
	if customerID == "" || len(requested) == 0 {
		return domain.Order{}, fmt.Errorf("%w: customer id and at least one item required", ErrInvalidRequest)
	}
	for _, req := range requested {
		if req.ProductID == "" || req.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: product %q quantity %d", ErrInvalidRequest, req.ProductID, req.Quantity)
		}
	}

	if err := s.customers.Exists(ctx, customerID); err != nil {
		return domain.Order{}, err
	}

	snapshots, err := s.lookupProducts(ctx, requested)
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(requested))
	for i, req := range requested {
		snap := snapshots[i]
		if snap.StockQuantity < req.Quantity {
			return domain.Order{}, fmt.Errorf("%w: product %s has %d, requested %d",
				domain.ErrInsufficientStock, snap.Name, snap.StockQuantity, req.Quantity)
		}
		items = append(items, domain.OrderItem{
			ProductID:   snap.ID,
			ProductName: snap.Name,
			Quantity:    req.Quantity,
			UnitPrice:   snap.Price,
		})
	}

	o := domain.NewOrder(customerID, items)

	event := domain.OrderCreated{OrderID: o.ID, CustomerID: o.CustomerID}
	for _, it := range o.Items {
		event.Items = append(event.Items, domain.EventItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.Order{}, err
	}

	headers := map[string]string{"source": "order-service"}
	if err := s.repo.SaveWithOutbox(ctx, o, "OrderCreated", payload, headers, traceparent(ctx)); err != nil {
		return domain.Order{}, err
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", o.ID, "customer_id", o.CustomerID, "total", o.TotalAmount.String(), "items", len(o.Items))
	return o, nil
}

// lookupProducts fetches snapshots with bounded concurrency, keeping results
// in request order. The first failure cancels the remaining fetches.
func (s *Service) lookupProducts(ctx context.Context, requested []ItemRequest) ([]domain.ProductSnapshot, error) {
	snapshots := make([]domain.ProductSnapshot, len(requested))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, req := range requested {
		i, req := i, req
		g.Go(func() error {
			snap, err := s.products.Get(gctx, req.ProductID)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// ListOrders returns the customer's orders, or every order when customerID
// is empty.
func (s *Service) ListOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	if customerID == "" {
		return s.repo.List(ctx)
	}
	return s.repo.ListByCustomer(ctx, customerID)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus) (domain.Order, error) {
	if !domain.ValidStatus(next) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, next)
	}
	return s.repo.Transition(ctx, id, next)
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Order, error) {
	o, err := s.repo.Transition(ctx, id, domain.StatusCancelled)
	if err != nil {
		return domain.Order{}, err
	}
	s.log.InfoContext(ctx, "order cancelled", "order_id", id)
	return o, nil
}

func traceparent(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier[tracing.TraceparentHeader]
}
