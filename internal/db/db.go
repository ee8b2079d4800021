// Package db
package db

import (
	"database/sql"

	"github.com/minterciso/mercadobtc-utils/internal/journal"
	"github.com/minterciso/mercadobtc-utils/internal/market"
	"github.com/minterciso/mercadobtc-utils/internal/order"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	summary.Storage
	order.OrderManager
	market.MarketManager
	journal.Journaler
}
