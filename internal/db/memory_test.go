package db

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minterciso/mercadobtc-utils/internal/journal"
	"github.com/minterciso/mercadobtc-utils/internal/market"
	"github.com/minterciso/mercadobtc-utils/internal/order"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
)

func day(d int) time.Time {
	return time.Date(2021, 9, d, 0, 0, 0, 0, time.UTC)
}

func mkSummary(coin string, date time.Time, opening float64) summary.DaySummary {
	return summary.DaySummary{
		Date:     date,
		Coin:     coin,
		Opening:  opening,
		Closing:  opening,
		Lowest:   opening - 10,
		Highest:  opening + 10,
		Volume:   1,
		Quantity: 1,
		Amount:   1,
		AvgPrice: opening,
	}
}

func TestMemorySummaries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveDaySummaries(ctx, []summary.DaySummary{
		mkSummary("BTC", day(1), 250000),
		mkSummary("BTC", day(2), 251000),
		mkSummary("BTC", day(3), 252000),
		mkSummary("ETH", day(2), 15000),
	}))

	// Range end is exclusive and other coins stay out
	got, err := m.GetDaySummaries(ctx, "BTC", day(1), day(3))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(1), got[0].Date)
	assert.Equal(t, day(2), got[1].Date)

	// Coin match is case insensitive
	got, err = m.GetDaySummaries(ctx, "btc", day(1), day(4))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	// Saving the same day again overwrites instead of duplicating
	updated := mkSummary("BTC", day(2), 999000)
	require.NoError(t, m.SaveDaySummary(ctx, updated))
	got, err = m.GetDaySummaries(ctx, "BTC", day(2), day(3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 999000, got[0].Opening, 1e-9)

	latest, err := m.GetLatestDaySummary(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, day(3), latest.Date)

	latest, err = m.GetLatestDaySummary(ctx, "LTC")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMemorySummaryValidation(t *testing.T) {
	m := NewMemory()
	bad := mkSummary("BTC", day(1), 250000)
	bad.Opening = 0

	assert.Error(t, m.SaveDaySummary(context.Background(), bad))
	assert.Error(t, m.SaveDaySummaries(context.Background(), []summary.DaySummary{bad}))
}

func TestMemoryOrders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := order.OrderResponse{
		OrderID:    1,
		Coin:       "BTC",
		Side:       order.SideBuy,
		Status:     order.StatusOpen,
		Quantity:   decimal.RequireFromString("0.001"),
		LimitPrice: decimal.RequireFromString("250000"),
		CreatedAt:  day(1),
	}
	second := first
	second.OrderID = 2
	second.CreatedAt = day(2)
	filled := first
	filled.OrderID = 3
	filled.Status = order.StatusFilled
	filled.CreatedAt = day(3)

	require.NoError(t, m.SaveOrder(ctx, first))
	require.NoError(t, m.SaveOrder(ctx, second))
	require.NoError(t, m.SaveOrder(ctx, filled))

	got, err := m.GetOrder(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(first.Quantity))

	_, err = m.GetOrder(ctx, 42)
	assert.Error(t, err)

	// Only open orders come back, oldest first
	open, err := m.GetOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, int64(1), open[0].OrderID)
	assert.Equal(t, int64(2), open[1].OrderID)

	require.NoError(t, m.CloseOrder(ctx, 1))
	open, err = m.GetOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(2), open[0].OrderID)

	assert.Error(t, m.CloseOrder(ctx, 42))
}

func TestMemoryTrades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	trades := []market.Trade{
		{TID: 1, Coin: "BTC", Side: "buy", Price: 250000, Amount: 0.01, Timestamp: day(1)},
		{TID: 2, Coin: "BTC", Side: "sell", Price: 251000, Amount: 0.02, Timestamp: day(2)},
		{TID: 3, Coin: "ETH", Side: "buy", Price: 15000, Amount: 0.5, Timestamp: day(1)},
	}
	require.NoError(t, m.SaveTrades(ctx, trades))

	// Saving again dedups on TID
	require.NoError(t, m.SaveTrades(ctx, trades))

	got, err := m.GetTrades(ctx, "BTC", day(1), day(3))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].TID)
	assert.Equal(t, int64(2), got[1].TID)

	// Range end exclusive
	got, err = m.GetTrades(ctx, "BTC", day(1), day(2))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].TID)
}

func TestMemoryOrderBooks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ob := market.OrderBook{
		Coin: "BTC",
		Bids: [][2]float64{{250000, 0.5}},
		Asks: [][2]float64{{250100, 0.3}},
	}
	require.NoError(t, m.SaveOrderBook(ctx, ob))
	require.NoError(t, m.SaveOrderBook(ctx, ob))

	assert.Len(t, m.orderbooks["BTC"], 2)
}

func TestMemoryEvents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.LogEvent(ctx, journal.Event{Time: day(1), Type: "download", Description: "a"}))
	require.NoError(t, m.LogEvent(ctx, journal.Event{Time: day(2), Type: "training", Description: "b"}))
	require.NoError(t, m.LogEvent(ctx, journal.Event{Time: day(3), Type: "download", Description: "c"}))

	got, err := m.GetEvents(ctx, "download", day(1), day(4))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Description)
	assert.Equal(t, "c", got[1].Description)

	// Time window end is exclusive
	got, err = m.GetEvents(ctx, "download", day(1), day(3))
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = m.GetEvents(ctx, "order", day(1), day(4))
	require.NoError(t, err)
	assert.Empty(t, got)
}
