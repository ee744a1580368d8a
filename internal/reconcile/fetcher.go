package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/model"
)

// PaymentCheck is the server's answer to a payment status check.
type PaymentCheck struct {
	OrderID         uuid.UUID `json:"orderId"`
	PaymentIntentID string    `json:"paymentIntentId"`
	ProviderStatus  string    `json:"providerStatus"`
	PaymentStatus   string    `json:"paymentStatus"`
	Status          string    `json:"status"`
}

// Fetcher reads order state from the server.
// Satisfied by *HTTPFetcher; narrow interface for testability.
type Fetcher interface {
	FetchOrder(ctx context.Context, id uuid.UUID) (model.Order, error)
	CheckPayment(ctx context.Context, id uuid.UUID) (PaymentCheck, error)
}

// HTTPFetcher talks to the order API.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (f *HTTPFetcher) FetchOrder(ctx context.Context, id uuid.UUID) (model.Order, error) {
	var o model.Order
	if err := f.get(ctx, "/orders/"+id.String(), &o); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (f *HTTPFetcher) CheckPayment(ctx context.Context, id uuid.UUID) (PaymentCheck, error) {
	var pc PaymentCheck
	if err := f.get(ctx, "/checkPaymentStatus/"+id.String(), &pc); err != nil {
		return PaymentCheck{}, err
	}
	return pc, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
