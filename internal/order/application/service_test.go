package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/fulfillment/internal/order/domain"
)

type fakeRepo struct {
	saved     []domain.Order
	savedType string
	payload   []byte
	saveErr   error

	orders map[string]domain.Order
}

func (f *fakeRepo) SaveWithOutbox(_ context.Context, o domain.Order, eventType string, payload []byte, _ map[string]string, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, o)
	f.savedType = eventType
	f.payload = payload
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeRepo) List(_ context.Context) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeRepo) ListByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeRepo) Transition(_ context.Context, id string, next domain.OrderStatus) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if next == domain.StatusCancelled && o.Status == domain.StatusCancelled {
		return o, nil
	}
	if !domain.CanTransition(o.Status, next) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	f.orders[id] = o
	return o, nil
}

type fakeProducts struct {
	snaps map[string]domain.ProductSnapshot
	err   error
}

func (f *fakeProducts) Get(_ context.Context, id string) (domain.ProductSnapshot, error) {
	if f.err != nil {
		return domain.ProductSnapshot{}, f.err
	}
	snap, ok := f.snaps[id]
	if !ok {
		return domain.ProductSnapshot{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return snap, nil
}

type fakeCustomers struct{ err error }

func (f *fakeCustomers) Exists(context.Context, string) error { return f.err }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestService(repo *fakeRepo, products *fakeProducts, customers *fakeCustomers) *Service {
	if repo.orders == nil {
		repo.orders = map[string]domain.Order{}
	}
	return NewService(discard(), repo, products, customers)
}

func snapshot(id, name, price string, stock int) domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: id, Name: name, Price: decimal.RequireFromString(price), StockQuantity: stock}
}

func TestCreateOrderSuccess(t *testing.T) {
	repo := &fakeRepo{}
	products := &fakeProducts{snaps: map[string]domain.ProductSnapshot{
		"p1": snapshot("p1", "Widget", "10.00", 5),
	}}
	svc := newTestService(repo, products, &fakeCustomers{})

	o, err := svc.CreateOrder(context.Background(), "c1", []ItemRequest{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCreated, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("30.00")), "total %s", o.TotalAmount)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, "OrderCreated", repo.savedType)

	var ev domain.OrderCreated
	require.NoError(t, json.Unmarshal(repo.payload, &ev))
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, "c1", ev.CustomerID)
	require.Len(t, ev.Items, 1)
	assert.Equal(t, "p1", ev.Items[0].ProductID)
	assert.Equal(t, 3, ev.Items[0].Quantity)
}

func TestCreateOrderFreezesSnapshotPrice(t *testing.T) {
	repo := &fakeRepo{}
	products := &fakeProducts{snaps: map[string]domain.ProductSnapshot{
		"p1": snapshot("p1", "Widget", "9.99", 10),
	}}
	svc := newTestService(repo, products, &fakeCustomers{})

	o, err := svc.CreateOrder(context.Background(), "c1", []ItemRequest{{ProductID: "p1", Quantity: 2}})
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget", o.Items[0].ProductName)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.RequireFromString("9.99")))
}

func TestCreateOrderCustomerNotFound(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeProducts{}, &fakeCustomers{err: domain.ErrCustomerNotFound})

	_, err := svc.CreateOrder(context.Background(), "missing", []ItemRequest{{ProductID: "p1", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
	assert.Empty(t, repo.saved)
}

func TestCreateOrderCustomerServiceDown(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeProducts{}, &fakeCustomers{err: domain.ErrUpstreamUnavailable})

	_, err := svc.CreateOrder(context.Background(), "c1", []ItemRequest{{ProductID: "p1", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, domain.ErrCustomerNotFound)
	assert.Empty(t, repo.saved)
}

func TestCreateOrderProductNotFound(t *testing.T) {
	repo := &fakeRepo{}
	products := &fakeProducts{snaps: map[string]domain.ProductSnapshot{
		"p1": snapshot("p1", "Widget", "10.00", 5),
	}}
	svc := newTestService(repo, products, &fakeCustomers{})

	_, err := svc.CreateOrder(context.Background(), "c1", []ItemRequest{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Empty(t, repo.saved, "no partial order may be persisted")
}

func TestCreateOrderInsufficientStockIsAtomic(t *testing.T) {
	repo := &fakeRepo{}
	products := &fakeProducts{snaps: map[string]domain.ProductSnapshot{
		"p1": snapshot("p1", "Widget", "10.00", 5),
		"p2": snapshot("p2", "Gadget", "4.50", 0),
	}}
	svc := newTestService(repo, products, &fakeCustomers{})

	_, err := svc.CreateOrder(context.Background(), "c1", []ItemRequest{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 1},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Gadget")
	assert.Empty(t, repo.saved)
}

func TestCreateOrderManyItemsExactTotal(t *testing.T) {
	snaps := map[string]domain.ProductSnapshot{}
	var reqs []ItemRequest
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("p%d", i)
		snaps[id] = snapshot(id, id, "0.10", 100)
		reqs = append(reqs, ItemRequest{ProductID: id, Quantity: 1})
	}
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeProducts{snaps: snaps}, &fakeCustomers{})

	o, err := svc.CreateOrder(context.Background(), "c1", reqs)
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("5.00")), "total %s", o.TotalAmount)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeProducts{}, &fakeCustomers{})

	_, err := svc.CreateOrder(context.Background(), "c1", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.CreateOrder(context.Background(), "", []ItemRequest{{ProductID: "p1", Quantity: 1}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.CreateOrder(context.Background(), "c1", []ItemRequest{{ProductID: "p1", Quantity: 0}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.CreateOrder(context.Background(), "c1", []ItemRequest{{ProductID: "p1", Quantity: -2}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCreateOrderSaveFailurePropagates(t *testing.T) {
	boom := errors.New("tx aborted")
	repo := &fakeRepo{saveErr: boom}
	products := &fakeProducts{snaps: map[string]domain.ProductSnapshot{
		"p1": snapshot("p1", "Widget", "10.00", 5),
	}}
	svc := newTestService(repo, products, &fakeCustomers{})

	_, err := svc.CreateOrder(context.Background(), "c1", []ItemRequest{{ProductID: "p1", Quantity: 1}})
	assert.ErrorIs(t, err, boom)
}

func TestCancelTransitions(t *testing.T) {
	for _, from := range []domain.OrderStatus{domain.StatusCreated, domain.StatusPaid, domain.StatusShipped} {
		repo := &fakeRepo{orders: map[string]domain.Order{"o1": {ID: "o1", Status: from}}}
		svc := newTestService(repo, &fakeProducts{}, &fakeCustomers{})

		o, err := svc.Cancel(context.Background(), "o1")
		require.NoError(t, err, "cancel from %s", from)
		assert.Equal(t, domain.StatusCancelled, o.Status)
	}
}

func TestCancelDeliveredFails(t *testing.T) {
	repo := &fakeRepo{orders: map[string]domain.Order{"o1": {ID: "o1", Status: domain.StatusDelivered}}}
	svc := newTestService(repo, &fakeProducts{}, &fakeCustomers{})

	_, err := svc.Cancel(context.Background(), "o1")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusDelivered, repo.orders["o1"].Status, "status must be unchanged")
}

func TestCancelCancelledIsNoop(t *testing.T) {
	repo := &fakeRepo{orders: map[string]domain.Order{"o1": {ID: "o1", Status: domain.StatusCancelled}}}
	svc := newTestService(repo, &fakeProducts{}, &fakeCustomers{})

	o, err := svc.Cancel(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)
}

func TestUpdateStatus(t *testing.T) {
	repo := &fakeRepo{orders: map[string]domain.Order{"o1": {ID: "o1", Status: domain.StatusCreated}}}
	svc := newTestService(repo, &fakeProducts{}, &fakeCustomers{})

	o, err := svc.UpdateStatus(context.Background(), "o1", domain.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)

	_, err = svc.UpdateStatus(context.Background(), "o1", domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "PAID -> DELIVERED skips SHIPPED")

	_, err = svc.UpdateStatus(context.Background(), "o1", "REFUNDED")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.UpdateStatus(context.Background(), "missing", domain.StatusPaid)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
