// Package market
package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker represents the 24h ticker of a coin.
type Ticker struct {
	Coin string
	High float64
	Low  float64
	Vol  float64
	Last float64
	Buy  float64
	Sell float64
	Date time.Time
}

// OrderBook represents the L2 orderbook snapshot.
type OrderBook struct {
	Coin      string
	Bids      [][2]float64 // price, quantity
	Asks      [][2]float64
	Timestamp time.Time
}

// Trade represents an executed public trade.
type Trade struct {
	Coin      string
	TID       int64
	Price     float64
	Amount    float64
	Side      string // "buy" or "sell"
	Timestamp time.Time
}

// Balance represents an asset balance from the trade API. Values come over
// the wire as strings, so they are kept as decimals to avoid float rounding.
type Balance struct {
	Asset            string          `json:"asset"`
	Available        decimal.Decimal `json:"available"`
	Total            decimal.Decimal `json:"total"`
	AmountOpenOrders int             `json:"amount_open_orders"`
}

// MarketManager interface for managing orderbook and trade storage.
type MarketManager interface {
	SaveOrderBook(ctx context.Context, ob OrderBook) error
	SaveTrades(ctx context.Context, trades []Trade) error
	GetTrades(ctx context.Context, coin string, start, end time.Time) ([]Trade, error)
}
