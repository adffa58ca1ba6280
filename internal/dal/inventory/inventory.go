// Package inventory is the synchronous stock-validation client used as a
// precondition before an order is created.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
)

const validatePath = "/api/v1/stock/validate"

// StockItem is one product and quantity to validate.
type StockItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type validateRequest struct {
	Items []StockItem `json:"items"`
}

type validateResponse struct {
	Available   bool     `json:"available"`
	Unavailable []string `json:"unavailable"`
}

// Client calls the inventory service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client whose every call is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ValidateStock returns nil when every item is available. Unavailable items
// yield a validation error naming them; any transport or server failure
// yields an upstream-unavailable error.
func (c *Client) ValidateStock(ctx context.Context, items []StockItem) error {
	ctx, span := otel.Tracer("inventory").Start(ctx, "InventoryClient.ValidateStock")
	defer span.End()

	body, err := json.Marshal(validateRequest{Items: items})
	if err != nil {
		return fmt.Errorf("failed to marshal stock request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+validatePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build stock request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.UpstreamUnavailable("inventory service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.UpstreamUnavailable(
			"inventory service",
			fmt.Errorf("inventory service returned status %d", resp.StatusCode),
		)
	}

	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errs.UpstreamUnavailable("inventory service", fmt.Errorf("failed to decode response: %w", err))
	}

	if !out.Available {
		if len(out.Unavailable) == 0 {
			return errs.Validation("insufficient stock")
		}

		return errs.Validation("insufficient stock for products: %s", strings.Join(out.Unavailable, ", "))
	}

	return nil
}
