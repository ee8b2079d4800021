package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/minterciso/mercadobtc-utils/internal/market"
	"github.com/minterciso/mercadobtc-utils/internal/notifier"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
	"github.com/minterciso/mercadobtc-utils/internal/utils"
)

// DefaultBaseURL is the production Mercado Bitcoin endpoint.
const DefaultBaseURL = "https://www.mercadobitcoin.net"

// MercadoBitcoin talks to both the public data API and the signed trade API.
type MercadoBitcoin struct {
	baseURL    string
	tapiID     string
	tapiSecret string
	httpClient *http.Client
	validate   *validator.Validate
	notifier   notifier.Notifier

	nonceMu   sync.Mutex
	lastNonce int64
}

// New creates a Mercado Bitcoin client. An empty baseURL selects the
// production endpoint. The TAPI credentials are only needed for the
// authenticated operations.
func New(baseURL, tapiID, tapiSecret string, n notifier.Notifier) *MercadoBitcoin {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &MercadoBitcoin{
		baseURL:    baseURL,
		tapiID:     tapiID,
		tapiSecret: tapiSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		validate:   validator.New(),
		notifier:   n,
	}
}

func (m *MercadoBitcoin) Name() string {
	return "mercadobitcoin"
}

// daySummaryResponse mirrors the /day-summary payload.
type daySummaryResponse struct {
	Date     string  `json:"date" validate:"required"`
	Opening  float64 `json:"opening" validate:"gt=0"`
	Closing  float64 `json:"closing" validate:"gt=0"`
	Lowest   float64 `json:"lowest" validate:"gt=0"`
	Highest  float64 `json:"highest" validate:"gt=0"`
	Volume   float64 `json:"volume" validate:"gte=0"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Amount   int     `json:"amount" validate:"gte=0"`
	AvgPrice float64 `json:"avg_price" validate:"gt=0"`
}

// DaySummary fetches the daily summary of a coin for a single day
// (GET /api/<coin>/day-summary/YYYY/MM/DD/).
func (m *MercadoBitcoin) DaySummary(ctx context.Context, coin string, day time.Time) (summary.DaySummary, error) {
	path := fmt.Sprintf("/api/%s/day-summary/%s/", coin, day.Format("2006/01/02"))

	var body []byte
	err := retry(3, 2*time.Second, func() error {
		var err error
		body, err = m.doGet(ctx, path)
		if err != nil {
			return fmt.Errorf("fetching day summary: %w", err)
		}
		return nil
	})
	if err != nil {
		return summary.DaySummary{}, fmt.Errorf("DaySummary failed: %w", err)
	}

	var resp daySummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return summary.DaySummary{}, fmt.Errorf("decoding day summary: %w", err)
	}
	if err := m.validate.Struct(resp); err != nil {
		return summary.DaySummary{}, fmt.Errorf("invalid day summary payload: %w", err)
	}
	date, err := time.Parse("2006-01-02", resp.Date)
	if err != nil {
		return summary.DaySummary{}, fmt.Errorf("parsing day summary date %q: %w", resp.Date, err)
	}

	return summary.DaySummary{
		Date:     date,
		Coin:     coin,
		Opening:  resp.Opening,
		Closing:  resp.Closing,
		Lowest:   resp.Lowest,
		Highest:  resp.Highest,
		Volume:   resp.Volume,
		Quantity: resp.Quantity,
		Amount:   resp.Amount,
		AvgPrice: resp.AvgPrice,
	}, nil
}

// tickerResponse mirrors the /ticker payload. Prices come as strings.
type tickerResponse struct {
	Ticker struct {
		High string `json:"high" validate:"required"`
		Low  string `json:"low" validate:"required"`
		Vol  string `json:"vol" validate:"required"`
		Last string `json:"last" validate:"required"`
		Buy  string `json:"buy" validate:"required"`
		Sell string `json:"sell" validate:"required"`
		Date int64  `json:"date" validate:"gt=0"`
	} `json:"ticker" validate:"required"`
}

// Ticker fetches the 24h ticker of a coin (GET /api/<coin>/ticker/).
func (m *MercadoBitcoin) Ticker(ctx context.Context, coin string) (market.Ticker, error) {
	var body []byte
	err := retry(3, 2*time.Second, func() error {
		var err error
		body, err = m.doGet(ctx, fmt.Sprintf("/api/%s/ticker/", coin))
		if err != nil {
			return fmt.Errorf("fetching ticker: %w", err)
		}
		return nil
	})
	if err != nil {
		return market.Ticker{}, fmt.Errorf("Ticker failed: %w", err)
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return market.Ticker{}, fmt.Errorf("decoding ticker: %w", err)
	}
	if err := m.validate.Struct(resp); err != nil {
		return market.Ticker{}, fmt.Errorf("invalid ticker payload: %w", err)
	}

	ticker := market.Ticker{
		Coin: coin,
		Date: time.Unix(resp.Ticker.Date, 0).UTC(),
	}
	for _, field := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"high", resp.Ticker.High, &ticker.High},
		{"low", resp.Ticker.Low, &ticker.Low},
		{"vol", resp.Ticker.Vol, &ticker.Vol},
		{"last", resp.Ticker.Last, &ticker.Last},
		{"buy", resp.Ticker.Buy, &ticker.Buy},
		{"sell", resp.Ticker.Sell, &ticker.Sell},
	} {
		v, err := strconv.ParseFloat(field.raw, 64)
		if err != nil {
			return market.Ticker{}, fmt.Errorf("ticker %s %q is not numeric: %w", field.name, field.raw, err)
		}
		*field.dst = v
	}

	return ticker, nil
}

// orderBookResponse mirrors the /orderbook payload.
type orderBookResponse struct {
	Asks [][2]float64 `json:"asks"`
	Bids [][2]float64 `json:"bids"`
}

// OrderBook fetches the full L2 orderbook of a coin (GET /api/<coin>/orderbook/).
func (m *MercadoBitcoin) OrderBook(ctx context.Context, coin string) (market.OrderBook, error) {
	var body []byte
	err := retry(3, 2*time.Second, func() error {
		var err error
		body, err = m.doGet(ctx, fmt.Sprintf("/api/%s/orderbook/", coin))
		if err != nil {
			return fmt.Errorf("fetching orderbook: %w", err)
		}
		return nil
	})
	if err != nil {
		return market.OrderBook{}, fmt.Errorf("OrderBook failed: %w", err)
	}

	var resp orderBookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return market.OrderBook{}, fmt.Errorf("decoding orderbook: %w", err)
	}

	return market.OrderBook{
		Coin:      coin,
		Bids:      resp.Bids,
		Asks:      resp.Asks,
		Timestamp: time.Now().UTC(),
	}, nil
}

// tradeResponse mirrors one entry of the /trades payload.
type tradeResponse struct {
	TID    int64   `json:"tid" validate:"gt=0"`
	Date   int64   `json:"date" validate:"gt=0"`
	Type   string  `json:"type" validate:"oneof=buy sell"`
	Price  float64 `json:"price" validate:"gt=0"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

// Trades fetches the most recent public trades of a coin (GET /api/<coin>/trades/).
func (m *MercadoBitcoin) Trades(ctx context.Context, coin string) ([]market.Trade, error) {
	var body []byte
	err := retry(3, 2*time.Second, func() error {
		var err error
		body, err = m.doGet(ctx, fmt.Sprintf("/api/%s/trades/", coin))
		if err != nil {
			return fmt.Errorf("fetching trades: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Trades failed: %w", err)
	}

	var resp []tradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding trades: %w", err)
	}

	var trades []market.Trade
	for _, t := range resp {
		// Skip malformed entries instead of failing the whole batch
		if err := m.validate.Struct(t); err != nil {
			continue
		}
		trades = append(trades, market.Trade{
			Coin:      coin,
			TID:       t.TID,
			Price:     t.Price,
			Amount:    t.Amount,
			Side:      t.Type,
			Timestamp: time.Unix(t.Date, 0).UTC(),
		})
	}

	return trades, nil
}

// doGet issues a single GET against the public data API and returns the raw body.
func (m *MercadoBitcoin) doGet(ctx context.Context, path string) ([]byte, error) {
	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s GET %s timeout", m.Name(), path)
		return nil, ctx.Err()

	default:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", path, err)
		}

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("requesting %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w %s for %s", errBadStatus, resp.Status, path)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response for %s: %w", path, err)
		}

		return body, nil
	}
}
