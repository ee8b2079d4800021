package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minterciso/mercadobtc-utils/internal/journal"
	"github.com/minterciso/mercadobtc-utils/internal/market"
	"github.com/minterciso/mercadobtc-utils/internal/order"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
)

// MemoryStorage keeps everything in maps. Used by tests and DB-less runs.
type MemoryStorage struct {
	mu sync.RWMutex

	// Day summaries keyed by coin|date
	summaries map[string]summary.DaySummary

	// Orderbooks and trades by coin
	orderbooks map[string][]market.OrderBook
	trades     map[string][]market.Trade

	// Orders by orderID
	orders map[int64]order.OrderResponse
	open   map[int64]bool

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		summaries:  make(map[string]summary.DaySummary),
		orderbooks: make(map[string][]market.OrderBook),
		trades:     make(map[string][]market.Trade),
		orders:     make(map[int64]order.OrderResponse),
		open:       make(map[int64]bool),
		events:     make([]journal.Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

// -------- summary.Storage --------

func summaryKey(coin string, date time.Time) string {
	return strings.ToUpper(coin) + "|" + date.UTC().Format("2006-01-02")
}

func (m *MemoryStorage) SaveDaySummary(ctx context.Context, s summary.DaySummary) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Date = s.Date.UTC()
	m.summaries[summaryKey(s.Coin, s.Date)] = s
	return nil
}

func (m *MemoryStorage) SaveDaySummaries(ctx context.Context, ss []summary.DaySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range ss {
		if err := ss[i].Validate(); err != nil {
			return err
		}
		ss[i].Date = ss[i].Date.UTC()
		m.summaries[summaryKey(ss[i].Coin, ss[i].Date)] = ss[i]
	}
	return nil
}

func (m *MemoryStorage) GetDaySummaries(ctx context.Context, coin string, start, end time.Time) ([]summary.DaySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []summary.DaySummary
	for _, s := range m.summaries {
		if !strings.EqualFold(s.Coin, coin) {
			continue
		}
		if s.Date.Before(start) || !s.Date.Before(end) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	return out, nil
}

func (m *MemoryStorage) GetLatestDaySummary(ctx context.Context, coin string) (*summary.DaySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *summary.DaySummary
	for _, s := range m.summaries {
		if !strings.EqualFold(s.Coin, coin) {
			continue
		}
		if latest == nil || s.Date.After(latest.Date) {
			cp := s
			latest = &cp
		}
	}

	return latest, nil
}

// -------- order.OrderManager --------

func (m *MemoryStorage) SaveOrder(ctx context.Context, o order.OrderResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderID] = o
	m.open[o.OrderID] = o.Status == order.StatusOpen
	return nil
}

func (m *MemoryStorage) GetOrder(ctx context.Context, orderID int64) (order.OrderResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return order.OrderResponse{}, fmt.Errorf("order %d not found", orderID)
	}
	return o, nil
}

func (m *MemoryStorage) GetOpenOrders(ctx context.Context) ([]order.OrderResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []order.OrderResponse
	for id, isOpen := range m.open {
		if isOpen {
			out = append(out, m.orders[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (m *MemoryStorage) CloseOrder(ctx context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return fmt.Errorf("order %d not found", orderID)
	}
	m.open[orderID] = false
	return nil
}

// -------- market.MarketManager --------

func (m *MemoryStorage) SaveOrderBook(ctx context.Context, ob market.OrderBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderbooks[strings.ToUpper(ob.Coin)] = append(m.orderbooks[strings.ToUpper(ob.Coin)], ob)
	return nil
}

func (m *MemoryStorage) SaveTrades(ctx context.Context, trades []market.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range trades {
		key := strings.ToUpper(t.Coin)
		exists := false
		for _, existing := range m.trades[key] {
			if existing.TID == t.TID {
				exists = true
				break
			}
		}
		if !exists {
			m.trades[key] = append(m.trades[key], t)
		}
	}
	return nil
}

func (m *MemoryStorage) GetTrades(ctx context.Context, coin string, start, end time.Time) ([]market.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []market.Trade
	for _, t := range m.trades[strings.ToUpper(coin)] {
		if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].TID < out[j].TID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	return out, nil
}

// -------- journal.Journaler --------

func (m *MemoryStorage) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []journal.Event
	for _, e := range m.events {
		if e.Type != eventType {
			continue
		}
		if e.Time.Before(start) || !e.Time.Before(end) {
			continue
		}
		out = append(out, e)
	}

	return out, nil
}
