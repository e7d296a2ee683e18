package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/orderflow/fulfillment/internal/order/domain"
)

type ProductClient struct {
	log    *slog.Logger
	http   *retryablehttp.Client
	mutate *http.Client
	base   string
}

func NewProductClient(log *slog.Logger, baseURL string) *ProductClient {
	return &ProductClient{log: log, http: newRetryingClient(log), mutate: newOneShotClient(), base: baseURL}
}

type productDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
}

func (c *ProductClient) Get(ctx context.Context, id string) (domain.ProductSnapshot, error) {
	u := c.base + "/api/products/" + url.PathEscape(id)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ProductSnapshot{}, fmt.Errorf("%w: product service: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ProductSnapshot{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	case resp.StatusCode >= 500:
		return domain.ProductSnapshot{}, fmt.Errorf("%w: product service returned %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.ProductSnapshot{}, fmt.Errorf("product service returned %d for %s", resp.StatusCode, id)
	}

	var dto productDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return domain.ProductSnapshot{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return domain.ProductSnapshot{
		ID:            dto.ID,
		Name:          dto.Name,
		Description:   dto.Description,
		Price:         dto.Price,
		StockQuantity: dto.StockQuantity,
	}, nil
}

// AdjustStock asks the product service to decrement stock by quantity. The
// decrement is conditional on the remote side: ok=false means the product had
// less than quantity in stock and nothing was changed.
//
// The request is sent exactly once. A decrement that may or may not have
// landed must not be resent blindly, so transport failures come back as
// ErrUpstreamUnavailable and the caller decides whether to redeliver under
// the same idempotency key, which the product service uses to deduplicate.
func (c *ProductClient) AdjustStock(ctx context.Context, idempotencyKey, id string, quantity int) (bool, error) {
	u := c.base + "/api/products/" + url.PathEscape(id) + "/stock?quantity=" + strconv.Itoa(quantity)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.mutate.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: product service: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusBadRequest:
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	default:
		return false, fmt.Errorf("%w: stock update returned %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
