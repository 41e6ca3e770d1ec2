package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rickgao/kalshi-trade/internal/errs"
)

// MaxBatchSize is the most orders one batch request may carry.
const MaxBatchSize = 20

// CreateOrder places a single order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var resp OrderResponse
	if err := c.send(ctx, http.MethodPost, "/portfolio/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("create order %s: %w", req.Ticker, err)
	}
	return &resp.Order, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*CancelOrderResponse, error) {
	var resp CancelOrderResponse
	if err := c.send(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return &resp, nil
}

// BatchCreateOrders submits up to MaxBatchSize orders in one request.
// The response is aligned with the request.
func (c *Client) BatchCreateOrders(ctx context.Context, orders []CreateOrderRequest) (*BatchCreateOrdersResponse, error) {
	if len(orders) > MaxBatchSize {
		return nil, errs.Validation("batch create: %d orders exceeds limit of %d", len(orders), MaxBatchSize)
	}

	var resp BatchCreateOrdersResponse
	if err := c.send(ctx, http.MethodPost, "/portfolio/orders/batched", BatchCreateOrdersRequest{Orders: orders}, &resp); err != nil {
		return nil, fmt.Errorf("batch create orders: %w", err)
	}
	return &resp, nil
}

// BatchCancelOrders cancels up to MaxBatchSize orders in one request.
func (c *Client) BatchCancelOrders(ctx context.Context, orderIDs []string) (*BatchCancelOrdersResponse, error) {
	if len(orderIDs) > MaxBatchSize {
		return nil, errs.Validation("batch cancel: %d orders exceeds limit of %d", len(orderIDs), MaxBatchSize)
	}

	var resp BatchCancelOrdersResponse
	if err := c.send(ctx, http.MethodDelete, "/portfolio/orders/batched", BatchCancelOrdersRequest{IDs: orderIDs}, &resp); err != nil {
		return nil, fmt.Errorf("batch cancel orders: %w", err)
	}
	return &resp, nil
}
