package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/orderflow/fulfillment/internal/order/domain"
)

type CustomerClient struct {
	log  *slog.Logger
	http *retryablehttp.Client
	base string
}

func NewCustomerClient(log *slog.Logger, baseURL string) *CustomerClient {
	return &CustomerClient{log: log, http: newRetryingClient(log), base: baseURL}
}

// Exists checks the customer service. A 404 means the customer does not
// exist; transport failures and 5xx responses that survive the retry budget
// surface as ErrUpstreamUnavailable, never as not-found.
func (c *CustomerClient) Exists(ctx context.Context, id string) error {
	u := c.base + "/api/customers/" + url.PathEscape(id)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: customer service: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, id)
	default:
		return fmt.Errorf("%w: customer service returned %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	}
}
