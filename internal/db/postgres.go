package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minterciso/mercadobtc-utils/internal/db/conf"
	"github.com/minterciso/mercadobtc-utils/internal/journal"
	"github.com/minterciso/mercadobtc-utils/internal/market"
	"github.com/minterciso/mercadobtc-utils/internal/order"
	"github.com/minterciso/mercadobtc-utils/internal/summary"

	_ "github.com/lib/pq"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

type Default struct {
	db *sql.DB
}

func New(c conf.Config) (*Default, error) {
	return &Default{db: c.DB}, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

// executeWithTransaction executes a function with proper transaction management.
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

// -------- summary.Storage --------

// SaveDaySummary saves a single day summary to the database
func (p *Default) SaveDaySummary(ctx context.Context, s summary.DaySummary) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid summary for %s at %s: %w", s.Coin, s.Date.Format("2006-01-02"), err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO day_summaries (coin, date, opening, closing, lowest, highest, volume, quantity, amount, avg_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (coin, date) DO UPDATE SET
			opening=EXCLUDED.opening, closing=EXCLUDED.closing, lowest=EXCLUDED.lowest,
			highest=EXCLUDED.highest, volume=EXCLUDED.volume, quantity=EXCLUDED.quantity,
			amount=EXCLUDED.amount, avg_price=EXCLUDED.avg_price`,
			s.Coin, s.Date, s.Opening, s.Closing, s.Lowest, s.Highest, s.Volume, s.Quantity, s.Amount, s.AvgPrice)
		if err != nil {
			return fmt.Errorf("failed to save summary for %s at %s: %w", s.Coin, s.Date.Format("2006-01-02"), err)
		}

		return nil
	})
}

func (p *Default) SaveDaySummaries(ctx context.Context, ss []summary.DaySummary) error {
	if len(ss) == 0 {
		return nil
	}

	for i, s := range ss {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid summary at index %d for %s at %s: %w",
				i, s.Coin, s.Date.Format("2006-01-02"), err)
		}
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO day_summaries (coin, date, opening, closing, lowest, highest, volume, quantity, amount, avg_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (coin, date) DO UPDATE SET
			opening=EXCLUDED.opening, closing=EXCLUDED.closing, lowest=EXCLUDED.lowest,
			highest=EXCLUDED.highest, volume=EXCLUDED.volume, quantity=EXCLUDED.quantity,
			amount=EXCLUDED.amount, avg_price=EXCLUDED.avg_price`)
		if err != nil {
			return fmt.Errorf("failed to prepare summary insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range ss {
			if _, err := stmt.ExecContext(ctx, s.Coin, s.Date, s.Opening, s.Closing, s.Lowest,
				s.Highest, s.Volume, s.Quantity, s.Amount, s.AvgPrice); err != nil {
				return fmt.Errorf("failed to save summary for %s at %s: %w", s.Coin, s.Date.Format("2006-01-02"), err)
			}
		}

		return nil
	})
}

// GetDaySummaries returns the summaries of a coin in [start, end), ordered by date.
func (p *Default) GetDaySummaries(ctx context.Context, coin string, start, end time.Time) ([]summary.DaySummary, error) {
	rows, err := p.queryWithTransaction(ctx, `
	SELECT coin, date, opening, closing, lowest, highest, volume, quantity, amount, avg_price
	FROM day_summaries
	WHERE coin=$1 AND date >= $2 AND date < $3
	ORDER BY date ASC`, coin, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries for %s: %w", coin, err)
	}
	defer rows.Close()

	var out []summary.DaySummary
	for rows.Next() {
		var s summary.DaySummary
		if err := rows.Scan(&s.Coin, &s.Date, &s.Opening, &s.Closing, &s.Lowest, &s.Highest,
			&s.Volume, &s.Quantity, &s.Amount, &s.AvgPrice); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.Date = s.Date.UTC()
		out = append(out, s)
	}

	return out, rows.Err()
}

func (p *Default) GetLatestDaySummary(ctx context.Context, coin string) (*summary.DaySummary, error) {
	row := p.db.QueryRowContext(ctx, `
	SELECT coin, date, opening, closing, lowest, highest, volume, quantity, amount, avg_price
	FROM day_summaries
	WHERE coin=$1
	ORDER BY date DESC
	LIMIT 1`, coin)

	var s summary.DaySummary
	if err := row.Scan(&s.Coin, &s.Date, &s.Opening, &s.Closing, &s.Lowest, &s.Highest,
		&s.Volume, &s.Quantity, &s.Amount, &s.AvgPrice); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest summary for %s: %w", coin, err)
	}
	s.Date = s.Date.UTC()

	return &s, nil
}

// -------- order.OrderManager --------

func (p *Default) SaveOrder(ctx context.Context, o order.OrderResponse) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, coin, side, status, quantity, limit_price, executed_qty, executed_price_avg, fee, created_at, updated_at, open)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (order_id) DO UPDATE SET
			status=EXCLUDED.status, executed_qty=EXCLUDED.executed_qty,
			executed_price_avg=EXCLUDED.executed_price_avg, fee=EXCLUDED.fee,
			updated_at=EXCLUDED.updated_at, open=EXCLUDED.open`,
			o.OrderID, o.Coin, o.Side, o.Status, o.Quantity.String(), o.LimitPrice.String(),
			o.ExecutedQty.String(), o.ExecutedPriceAvg.String(), o.Fee.String(),
			o.CreatedAt, o.UpdatedAt, o.Status == order.StatusOpen)
		if err != nil {
			return fmt.Errorf("failed to save order %d: %w", o.OrderID, err)
		}

		return nil
	})
}

func (p *Default) GetOrder(ctx context.Context, orderID int64) (order.OrderResponse, error) {
	row := p.db.QueryRowContext(ctx, `
	SELECT order_id, coin, side, status, quantity, limit_price, executed_qty, executed_price_avg, fee, created_at, updated_at
	FROM orders WHERE order_id=$1`, orderID)

	o, err := scanOrder(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return order.OrderResponse{}, fmt.Errorf("order %d not found", orderID)
		}
		return order.OrderResponse{}, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}

	return o, nil
}

func (p *Default) GetOpenOrders(ctx context.Context) ([]order.OrderResponse, error) {
	rows, err := p.queryWithTransaction(ctx, `
	SELECT order_id, coin, side, status, quantity, limit_price, executed_qty, executed_price_avg, fee, created_at, updated_at
	FROM orders WHERE open ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var out []order.OrderResponse
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}

	return out, rows.Err()
}

func (p *Default) CloseOrder(ctx context.Context, orderID int64) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE orders SET open=FALSE WHERE order_id=$1`, orderID)
		if err != nil {
			return fmt.Errorf("failed to close order %d: %w", orderID, err)
		}
		return nil
	})
}

func scanOrder(scan func(dest ...any) error) (order.OrderResponse, error) {
	var o order.OrderResponse
	var quantity, limitPrice, executedQty, executedAvg, fee string
	if err := scan(&o.OrderID, &o.Coin, &o.Side, &o.Status, &quantity, &limitPrice,
		&executedQty, &executedAvg, &fee, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.OrderResponse{}, err
	}

	var err error
	if o.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing stored quantity: %w", err)
	}
	if o.LimitPrice, err = decimal.NewFromString(limitPrice); err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing stored limit price: %w", err)
	}
	if o.ExecutedQty, err = decimal.NewFromString(executedQty); err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing stored executed qty: %w", err)
	}
	if o.ExecutedPriceAvg, err = decimal.NewFromString(executedAvg); err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing stored executed price avg: %w", err)
	}
	if o.Fee, err = decimal.NewFromString(fee); err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing stored fee: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	return o, nil
}

// -------- market.MarketManager --------

func (p *Default) SaveOrderBook(ctx context.Context, ob market.OrderBook) error {
	bids, err := json.Marshal(ob.Bids)
	if err != nil {
		return fmt.Errorf("failed to marshal bids: %w", err)
	}
	asks, err := json.Marshal(ob.Asks)
	if err != nil {
		return fmt.Errorf("failed to marshal asks: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO orderbooks (coin, timestamp, bids, asks)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (coin, timestamp) DO UPDATE SET bids=EXCLUDED.bids, asks=EXCLUDED.asks`,
			ob.Coin, ob.Timestamp, bids, asks)
		if err != nil {
			return fmt.Errorf("failed to save orderbook for %s: %w", ob.Coin, err)
		}
		return nil
	})
}

func (p *Default) SaveTrades(ctx context.Context, trades []market.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (coin, tid, price, amount, side, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (coin, tid) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("failed to prepare trade insert: %w", err)
		}
		defer stmt.Close()

		for _, t := range trades {
			if _, err := stmt.ExecContext(ctx, t.Coin, t.TID, t.Price, t.Amount, t.Side, t.Timestamp); err != nil {
				return fmt.Errorf("failed to save trade %d for %s: %w", t.TID, t.Coin, err)
			}
		}
		return nil
	})
}

func (p *Default) GetTrades(ctx context.Context, coin string, start, end time.Time) ([]market.Trade, error) {
	rows, err := p.queryWithTransaction(ctx, `
	SELECT coin, tid, price, amount, side, timestamp
	FROM trades
	WHERE coin=$1 AND timestamp >= $2 AND timestamp < $3
	ORDER BY timestamp ASC, tid ASC`, coin, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s: %w", coin, err)
	}
	defer rows.Close()

	var out []market.Trade
	for rows.Next() {
		var t market.Trade
		if err := rows.Scan(&t.Coin, &t.TID, &t.Price, &t.Amount, &t.Side, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}

	return out, rows.Err()
}

// -------- journal.Journaler --------

func (p *Default) LogEvent(ctx context.Context, event journal.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO events (time, type, description, data)
		VALUES ($1,$2,$3,$4)`,
			event.Time, event.Type, event.Description, data)
		if err != nil {
			return fmt.Errorf("failed to log event %s: %w", event.Type, err)
		}
		return nil
	})
}

func (p *Default) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.queryWithTransaction(ctx, `
	SELECT time, type, description, data
	FROM events
	WHERE type=$1 AND time >= $2 AND time < $3
	ORDER BY time ASC`, eventType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		e.Time = e.Time.UTC()
		out = append(out, e)
	}

	return out, rows.Err()
}
