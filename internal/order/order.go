// Package order
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order status as reported by the trade API.
const (
	StatusOpen     = "open"
	StatusCanceled = "canceled"
	StatusFilled   = "filled"
)

// OrderRequest represents a new limit order to be submitted.
type OrderRequest struct {
	Coin       string // e.g. "BTC"
	Side       string // "buy" or "sell"
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal
}

// OrderResponse represents an order as reported by the trade API.
type OrderResponse struct {
	OrderID          int64
	Coin             string
	Side             string
	Status           string
	Quantity         decimal.Decimal
	LimitPrice       decimal.Decimal
	ExecutedQty      decimal.Decimal
	ExecutedPriceAvg decimal.Decimal
	Fee              decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderManager interface for managing order lifecycle.
type OrderManager interface {
	GetOrder(ctx context.Context, orderID int64) (OrderResponse, error)
	GetOpenOrders(ctx context.Context) ([]OrderResponse, error)
	SaveOrder(ctx context.Context, o OrderResponse) error
	CloseOrder(ctx context.Context, orderID int64) error
}
