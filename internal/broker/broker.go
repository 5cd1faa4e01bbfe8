// Package broker places and tracks orders with the upstream gateway over HTTP.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"niftybot-go/internal/metrics"
)

// ErrOrderRejected means the gateway refused the order. The wrapped message
// carries the upstream reason.
var ErrOrderRejected = errors.New("order rejected")

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TypeMarket = "MARKET"
	TypeLimit  = "LIMIT"
)

// OrderRequest is one order submission. Field names follow the gateway's
// wire format.
type OrderRequest struct {
	Instrument string  `json:"instrument_token"`
	Side       string  `json:"transaction_type"`
	Quantity   int     `json:"quantity"`
	OrderType  string  `json:"order_type"`
	Price      float64 `json:"price,omitempty"`
	Product    string  `json:"product,omitempty"`
	Validity   string  `json:"validity,omitempty"`
	Tag        string  `json:"tag,omitempty"`
}

// Validate rejects requests the gateway would bounce anyway.
func (r OrderRequest) Validate() error {
	if r.Instrument == "" {
		return errors.New("order missing instrument")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("invalid order side %q", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("invalid order quantity %d", r.Quantity)
	}
	switch r.OrderType {
	case TypeMarket:
	case TypeLimit:
		if r.Price <= 0 {
			return fmt.Errorf("limit order needs a positive price, got %.2f", r.Price)
		}
	default:
		return fmt.Errorf("invalid order type %q", r.OrderType)
	}
	return nil
}

// OrderResult is the gateway's view of an order.
type OrderResult struct {
	OrderID string
	Status  string
}

// Gateway abstracts order placement so the trading loop can run against a
// fake in tests.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (OrderResult, error)
}

// HTTPGateway talks to the broker's REST API with a bearer token.
type HTTPGateway struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (g *HTTPGateway) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := gjson.GetBytes(raw, "errors.0.message").String()
		if reason == "" {
			reason = string(raw)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrOrderRejected, resp.StatusCode, reason)
	}
	return raw, nil
}

// PlaceOrder submits the order and returns the gateway's order id.
func (g *HTTPGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := req.Validate(); err != nil {
		return OrderResult{}, fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}
	raw, err := g.do(ctx, http.MethodPost, "/order", req)
	if err != nil {
		return OrderResult{}, err
	}
	id := gjson.GetBytes(raw, "data.order_id").String()
	if id == "" {
		return OrderResult{}, fmt.Errorf("%w: response missing order id", ErrOrderRejected)
	}
	metrics.OrdersTotal.WithLabelValues(req.Side).Inc()
	return OrderResult{OrderID: id, Status: gjson.GetBytes(raw, "status").String()}, nil
}

// CancelOrder asks the gateway to withdraw a resting order.
func (g *HTTPGateway) CancelOrder(ctx context.Context, orderID string) error {
	_, err := g.do(ctx, http.MethodDelete, "/order/"+url.PathEscape(orderID), nil)
	return err
}

// OrderStatus fetches the current state of an order.
func (g *HTTPGateway) OrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	raw, err := g.do(ctx, http.MethodGet, "/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		return OrderResult{}, err
	}
	return OrderResult{
		OrderID: orderID,
		Status:  gjson.GetBytes(raw, "data.status").String(),
	}, nil
}
