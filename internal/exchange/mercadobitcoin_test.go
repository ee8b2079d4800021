package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minterciso/mercadobtc-utils/internal/notifier"
)

func TestDaySummary(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{
			"date": "2021-09-01",
			"opening": 251913.28,
			"closing": 255200.0,
			"lowest": 250000.0,
			"highest": 256500.0,
			"volume": 1234.5,
			"quantity": 4.9,
			"amount": 140,
			"avg_price": 253000.1
		}`)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	s, err := client.DaySummary(context.Background(), "BTC", time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/api/BTC/day-summary/2021/09/01/", gotPath)
	assert.Equal(t, "BTC", s.Coin)
	assert.Equal(t, time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC), s.Date)
	assert.InDelta(t, 251913.28, s.Opening, 1e-9)
	assert.InDelta(t, 253000.1, s.AvgPrice, 1e-9)
	assert.Equal(t, 140, s.Amount)
	assert.NoError(t, s.Validate())
}

func TestDaySummaryRejectsInvalidPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Missing prices, fails validation
		fmt.Fprint(w, `{"date": "2021-09-01"}`)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	_, err := client.DaySummary(context.Background(), "BTC", time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid day summary payload")
}

func TestDaySummaryNotFoundAbortsImmediately(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	_, err := client.DaySummary(context.Background(), "BTC", time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected HTTP status")
	assert.Equal(t, 1, requests, "a 404 must not be retried")
}

func TestTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/BTC/ticker/", r.URL.Path)
		fmt.Fprint(w, `{"ticker": {
			"high": "256500.00000000",
			"low": "250000.00000000",
			"vol": "1234.50000000",
			"last": "255200.00000000",
			"buy": "255100.00000000",
			"sell": "255300.00000000",
			"date": 1630512000
		}}`)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	ticker, err := client.Ticker(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, "BTC", ticker.Coin)
	assert.InDelta(t, 256500, ticker.High, 1e-9)
	assert.InDelta(t, 255200, ticker.Last, 1e-9)
	assert.InDelta(t, 255100, ticker.Buy, 1e-9)
	assert.InDelta(t, 255300, ticker.Sell, 1e-9)
	assert.Equal(t, time.Unix(1630512000, 0).UTC(), ticker.Date)
}

func TestTickerRejectsNonNumericPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ticker": {
			"high": "garbage",
			"low": "250000.00000000",
			"vol": "1234.50000000",
			"last": "255200.00000000",
			"buy": "255100.00000000",
			"sell": "255300.00000000",
			"date": 1630512000
		}}`)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	_, err := client.Ticker(context.Background(), "BTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")
}

func TestOrderBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/BTC/orderbook/", r.URL.Path)
		fmt.Fprint(w, `{"asks": [[255300.0, 0.5], [255400.0, 1.2]], "bids": [[255100.0, 0.8]]}`)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	ob, err := client.OrderBook(context.Background(), "BTC")
	require.NoError(t, err)

	require.Len(t, ob.Asks, 2)
	require.Len(t, ob.Bids, 1)
	assert.Equal(t, [2]float64{255300, 0.5}, ob.Asks[0])
	assert.Equal(t, [2]float64{255100, 0.8}, ob.Bids[0])
	assert.Equal(t, "BTC", ob.Coin)
}

func TestTrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/BTC/trades/", r.URL.Path)
		fmt.Fprint(w, `[
			{"tid": 1, "date": 1630512000, "type": "buy", "price": 255200.0, "amount": 0.01},
			{"tid": 2, "date": 1630512060, "type": "sell", "price": 255100.0, "amount": 0.02},
			{"tid": 0, "date": 0, "type": "buy", "price": 0, "amount": 0}
		]`)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	trades, err := client.Trades(context.Background(), "BTC")
	require.NoError(t, err)

	// The malformed third entry is skipped
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1), trades[0].TID)
	assert.Equal(t, "buy", trades[0].Side)
	assert.InDelta(t, 255200, trades[0].Price, 1e-9)
	assert.Equal(t, "sell", trades[1].Side)
	assert.Equal(t, time.Unix(1630512060, 0).UTC(), trades[1].Timestamp)
}

func TestDoGetHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "", "", notifier.NoopNotifier{})
	_, err := client.doGet(context.Background(), "/api/BTC/ticker/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected HTTP status")
}

func TestDoGetCanceledContext(t *testing.T) {
	client := New("http://127.0.0.1:1", "", "", notifier.NoopNotifier{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.doGet(ctx, "/api/BTC/ticker/")
	assert.ErrorIs(t, err, context.Canceled)
}
