package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/minterciso/mercadobtc-utils/internal/market"
	"github.com/minterciso/mercadobtc-utils/internal/order"
	"github.com/minterciso/mercadobtc-utils/internal/utils"
)

// tapiPath is the single endpoint of the trade API. The method to execute
// travels in the form body, not in the URL.
const tapiPath = "/tapi/v3/"

// tapiSuccess is the application-level success code of the trade API.
const tapiSuccess = 100

// tapiEnvelope wraps every trade API response.
type tapiEnvelope struct {
	ResponseData json.RawMessage `json:"response_data"`
	StatusCode   int             `json:"status_code"`
	ErrorMessage string          `json:"error_message"`
}

// nonce returns a strictly monotonic number to be used only once per request.
func (m *MercadoBitcoin) nonce() int64 {
	now := time.Now().Unix()

	m.nonceMu.Lock()
	if now <= m.lastNonce {
		now = m.lastNonce + 1 // ensure strict monotonicity
	}
	m.lastNonce = now
	m.nonceMu.Unlock()

	return now
}

// signPayload computes the TAPI-MAC for a request: the hex digest of
// HMAC-SHA512 over "path?urlencoded-params" keyed with the TAPI secret.
func (m *MercadoBitcoin) signPayload(path string, params url.Values) string {
	payload := path + "?" + params.Encode()
	mac := hmac.New(sha512.New, []byte(m.tapiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// callTAPI signs and posts a trade API request and unwraps the envelope.
func (m *MercadoBitcoin) callTAPI(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	if m.tapiID == "" || m.tapiSecret == "" {
		return nil, fmt.Errorf("trade API credentials not configured")
	}

	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s %s timeout", m.Name(), method)
		return nil, ctx.Err()

	default:
		if params == nil {
			params = url.Values{}
		}
		params.Set("tapi_method", method)
		params.Set("tapi_nonce", strconv.FormatInt(m.nonce(), 10))

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+tapiPath, strings.NewReader(params.Encode()))
		if err != nil {
			return nil, fmt.Errorf("building %s request: %w", method, err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("TAPI-ID", m.tapiID)
		req.Header.Set("TAPI-MAC", m.signPayload(tapiPath, params))

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("posting %s: %w", method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s for %s", resp.Status, method)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s response: %w", method, err)
		}

		var envelope tapiEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decoding %s envelope: %w", method, err)
		}
		if envelope.StatusCode != tapiSuccess {
			return nil, fmt.Errorf("%s rejected by trade API (status %d): %s", method, envelope.StatusCode, envelope.ErrorMessage)
		}

		return envelope.ResponseData, nil
	}
}

// wireBalance mirrors one asset entry of the get_account_info balance map.
type wireBalance struct {
	Available        string `json:"available"`
	Total            string `json:"total"`
	AmountOpenOrders int    `json:"amount_open_orders"`
}

// AccountInfo queries the trade API for the account balances. The assets
// filter is applied client side: the API misbehaves when the filter is sent
// as a parameter.
func (m *MercadoBitcoin) AccountInfo(ctx context.Context, assets []string) (map[string]market.Balance, error) {
	data, err := m.callTAPI(ctx, "get_account_info", nil)
	if err != nil {
		return nil, fmt.Errorf("AccountInfo failed: %w", err)
	}

	var resp struct {
		Balance map[string]wireBalance `json:"balance"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding account info: %w", err)
	}

	wanted := make(map[string]bool, len(assets))
	for _, a := range assets {
		wanted[strings.ToLower(a)] = true
	}

	balances := make(map[string]market.Balance)
	for asset, wb := range resp.Balance {
		if len(wanted) > 0 && !wanted[strings.ToLower(asset)] {
			continue
		}
		available, err := decimal.NewFromString(wb.Available)
		if err != nil {
			return nil, fmt.Errorf("parsing available balance for %s: %w", asset, err)
		}
		total, err := decimal.NewFromString(wb.Total)
		if err != nil {
			return nil, fmt.Errorf("parsing total balance for %s: %w", asset, err)
		}
		balances[asset] = market.Balance{
			Asset:            asset,
			Available:        available,
			Total:            total,
			AmountOpenOrders: wb.AmountOpenOrders,
		}
	}

	return balances, nil
}

// wireOrder mirrors an order as returned by the trade API.
type wireOrder struct {
	OrderID          int64  `json:"order_id"`
	CoinPair         string `json:"coin_pair"`
	OrderType        int    `json:"order_type"`
	Status           int    `json:"status"`
	Quantity         string `json:"quantity"`
	LimitPrice       string `json:"limit_price"`
	ExecutedQty      string `json:"executed_quantity"`
	ExecutedPriceAvg string `json:"executed_price_avg"`
	Fee              string `json:"fee"`
	CreatedTstamp    string `json:"created_timestamp"`
	UpdatedTstamp    string `json:"updated_timestamp"`
}

func (w wireOrder) toOrderResponse() (order.OrderResponse, error) {
	side := order.SideBuy
	if w.OrderType == 2 {
		side = order.SideSell
	}

	var status string
	switch w.Status {
	case 2:
		status = order.StatusOpen
	case 3:
		status = order.StatusCanceled
	case 4:
		status = order.StatusFilled
	default:
		status = strconv.Itoa(w.Status)
	}

	quantity, err := decimal.NewFromString(w.Quantity)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing order quantity: %w", err)
	}
	limitPrice, err := decimal.NewFromString(w.LimitPrice)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing order limit price: %w", err)
	}
	executedQty, err := decimal.NewFromString(w.ExecutedQty)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing executed quantity: %w", err)
	}
	executedAvg, err := decimal.NewFromString(w.ExecutedPriceAvg)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing executed price avg: %w", err)
	}
	fee, err := decimal.NewFromString(w.Fee)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("parsing order fee: %w", err)
	}

	createdAt := parseUnixString(w.CreatedTstamp)
	updatedAt := parseUnixString(w.UpdatedTstamp)
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return order.OrderResponse{
		OrderID:          w.OrderID,
		Coin:             strings.TrimPrefix(w.CoinPair, "BRL"),
		Side:             side,
		Status:           status,
		Quantity:         quantity,
		LimitPrice:       limitPrice,
		ExecutedQty:      executedQty,
		ExecutedPriceAvg: executedAvg,
		Fee:              fee,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

func parseUnixString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// CoinPair builds the trade API pair identifier for a coin, e.g. "BRLBTC".
func CoinPair(coin string) string {
	return "BRL" + strings.ToUpper(coin)
}

// PlaceOrder submits a limit order through place_buy_order/place_sell_order.
func (m *MercadoBitcoin) PlaceOrder(ctx context.Context, req order.OrderRequest) (order.OrderResponse, error) {
	method := "place_buy_order"
	if req.Side == order.SideSell {
		method = "place_sell_order"
	}

	params := url.Values{}
	params.Set("coin_pair", CoinPair(req.Coin))
	params.Set("quantity", req.Quantity.StringFixed(8))
	params.Set("limit_price", req.LimitPrice.StringFixed(5))

	data, err := m.callTAPI(ctx, method, params)
	if err != nil {
		if m.notifier != nil {
			if nerr := m.notifier.SendWithRetry(fmt.Sprintf("Order submission failed for %s %s: %v", req.Side, req.Coin, err)); nerr != nil {
				utils.GetLogger().Printf("Exchange | Failed to send order failure notification: %v", nerr)
			}
		}
		return order.OrderResponse{}, fmt.Errorf("PlaceOrder failed: %w", err)
	}

	return decodeOrderData(data)
}

// CancelOrder cancels an open order and returns its final state.
func (m *MercadoBitcoin) CancelOrder(ctx context.Context, coin string, orderID int64) (order.OrderResponse, error) {
	params := url.Values{}
	params.Set("coin_pair", CoinPair(coin))
	params.Set("order_id", strconv.FormatInt(orderID, 10))

	data, err := m.callTAPI(ctx, "cancel_order", params)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("CancelOrder failed: %w", err)
	}

	return decodeOrderData(data)
}

// OrderStatus fetches the current state of a single order.
func (m *MercadoBitcoin) OrderStatus(ctx context.Context, coin string, orderID int64) (order.OrderResponse, error) {
	params := url.Values{}
	params.Set("coin_pair", CoinPair(coin))
	params.Set("order_id", strconv.FormatInt(orderID, 10))

	data, err := m.callTAPI(ctx, "get_order", params)
	if err != nil {
		return order.OrderResponse{}, fmt.Errorf("OrderStatus failed: %w", err)
	}

	return decodeOrderData(data)
}

// ListOrders lists the orders of a coin pair, most recent first.
func (m *MercadoBitcoin) ListOrders(ctx context.Context, coin string) ([]order.OrderResponse, error) {
	params := url.Values{}
	params.Set("coin_pair", CoinPair(coin))

	data, err := m.callTAPI(ctx, "list_orders", params)
	if err != nil {
		return nil, fmt.Errorf("ListOrders failed: %w", err)
	}

	var resp struct {
		Orders []wireOrder `json:"orders"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding order list: %w", err)
	}

	orders := make([]order.OrderResponse, 0, len(resp.Orders))
	for _, w := range resp.Orders {
		o, err := w.toOrderResponse()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	return orders, nil
}

func decodeOrderData(data json.RawMessage) (order.OrderResponse, error) {
	var resp struct {
		Order wireOrder `json:"order"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return order.OrderResponse{}, fmt.Errorf("decoding order: %w", err)
	}
	return resp.Order.toOrderResponse()
}
