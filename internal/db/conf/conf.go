// Package conf
package conf

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Config holds an opened database connection.
type Config struct {
	DB      *sql.DB
	ConnStr string
}

// NewConfig opens a Postgres connection pool with the given limits.
func NewConfig(connStr string, maxOpen, maxIdle int) (*Config, error) {
	if connStr == "" {
		return nil, fmt.Errorf("empty database connection string")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Config{DB: db, ConnStr: connStr}, nil
}
