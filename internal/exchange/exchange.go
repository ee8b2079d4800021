// Package exchange
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/minterciso/mercadobtc-utils/internal/market"
	"github.com/minterciso/mercadobtc-utils/internal/order"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
	"github.com/minterciso/mercadobtc-utils/internal/utils"
)

// PublicAPI is the interface for the unauthenticated data endpoints.
type PublicAPI interface {
	Name() string
	DaySummary(ctx context.Context, coin string, day time.Time) (summary.DaySummary, error)
	Ticker(ctx context.Context, coin string) (market.Ticker, error)
	OrderBook(ctx context.Context, coin string) (market.OrderBook, error)
	Trades(ctx context.Context, coin string) ([]market.Trade, error)
}

// TradeAPI is the interface for the authenticated (signed) endpoints.
type TradeAPI interface {
	AccountInfo(ctx context.Context, assets []string) (map[string]market.Balance, error)
	PlaceOrder(ctx context.Context, req order.OrderRequest) (order.OrderResponse, error)
	CancelOrder(ctx context.Context, coin string, orderID int64) (order.OrderResponse, error)
	OrderStatus(ctx context.Context, coin string, orderID int64) (order.OrderResponse, error)
	ListOrders(ctx context.Context, coin string) ([]order.OrderResponse, error)
}

// Exchange is the full client surface.
type Exchange interface {
	PublicAPI
	TradeAPI
}

// errBadStatus marks a non-200 response. The request reached the API, so
// replaying it cannot help and retry gives up immediately.
var errBadStatus = errors.New("unexpected HTTP status")

// retry wraps a function with retry logic for transient errors, using exponential backoff and error logging.
func retry(attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	for i := 1; i <= attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, errBadStatus) {
			return err
		}
		utils.GetLogger().Printf("Exchange | %s Retry attempt %d/%d failed: %v. Backing off for %v", "MercadoBitcoin", i, attempts, err, backoff)
		time.Sleep(backoff)
		// Exponential backoff, but cap at 5 minutes
		if backoff < 5*time.Minute {
			backoff *= 2
			if backoff > 5*time.Minute {
				backoff = 5 * time.Minute
			}
		}
	}
	return errors.New("all retry attempts failed")
}
