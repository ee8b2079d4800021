package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lib/pq"
	"github.com/tomlazar/table"

	"github.com/minterciso/mercadobtc-utils/internal/analyzer"
	"github.com/minterciso/mercadobtc-utils/internal/config"
	"github.com/minterciso/mercadobtc-utils/internal/db"
	"github.com/minterciso/mercadobtc-utils/internal/db/conf"
	"github.com/minterciso/mercadobtc-utils/internal/exchange"
	"github.com/minterciso/mercadobtc-utils/internal/journal"
	"github.com/minterciso/mercadobtc-utils/internal/notifier"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
)

func main() {
	// Load configuration
	cfg := config.MustLoadConfig()
	log.Println("Starting MercadoBTC Utils in mode:", cfg.Mode)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Run migrations if enabled
	if cfg.RunMigration {
		if err := runMigrations(ctx, cfg.DBConnStr); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize storage: Postgres when configured, in-memory otherwise
	storage := newStorage(cfg)

	// Set up notification system
	var n notifier.Notifier = notifier.NoopNotifier{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		n = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotifyRetries, cfg.NotifyDelay)
	}

	// Create exchange client
	ex := exchange.New(cfg.BaseURL, cfg.TapiID, cfg.TapiSecret, n)

	var err error
	switch cfg.Mode {
	case "download":
		err = runDownload(ctx, cfg, ex, storage)
	case "analyze":
		err = runAnalyze(ctx, cfg, ex, storage)
	case "predict":
		err = runPredict(ctx, cfg, ex, storage, n)
	case "market":
		err = runMarket(ctx, cfg, ex, storage)
	case "account":
		err = runAccount(ctx, cfg, ex)
	case "orders":
		err = runOrders(ctx, cfg, ex, storage)
	default:
		log.Fatalf("Unsupported mode: %s", cfg.Mode)
	}
	if err != nil {
		log.Fatalf("Mode %s failed: %v", cfg.Mode, err)
	}
}

// newStorage picks the storage backend based on configuration.
func newStorage(cfg config.Config) db.Storage {
	if cfg.DBConnStr == "" {
		log.Println("No database configured, using in-memory storage")
		return db.NewMemory()
	}

	dbConfig, err := conf.NewConfig(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
	if err != nil {
		log.Fatalf("Failed to create DB config: %v", err)
	}
	storage, err := db.New(*dbConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Connected to Postgres")

	return storage
}

// newAnalysis builds an analyzer for the configured coin and date range.
func newAnalysis(cfg config.Config, ex exchange.PublicAPI, storage db.Storage) *analyzer.BasicAnalysis {
	ba := analyzer.New(cfg.Coin, ex, storage, storage)
	ba.InitialDate = cfg.FromTime
	ba.EndDate = cfg.ToTime
	return ba
}

// loadDataset fills the analyzer dataset: CSV file first, then storage, then
// a fresh download.
func loadDataset(ctx context.Context, cfg config.Config, ba *analyzer.BasicAnalysis) error {
	if cfg.CSVPath != "" {
		if err := ba.LoadCSV(cfg.CSVPath); err == nil {
			log.Printf("Loaded %d rows from %s", len(ba.Rows()), summary.NormalizeCSVPath(cfg.CSVPath))
			return nil
		}
		log.Printf("CSV file not usable, falling back to storage/download")
	}
	if err := ba.LoadStored(ctx); err == nil && len(ba.Rows()) > 0 {
		log.Printf("Loaded %d rows from storage", len(ba.Rows()))
		return nil
	}
	log.Println("No local data found, downloading from the exchange...")
	return ba.DownloadSummaries(ctx, false)
}

func runDownload(ctx context.Context, cfg config.Config, ex exchange.Exchange, storage db.Storage) error {
	ba := newAnalysis(cfg, ex, storage)
	if err := ba.DownloadSummaries(ctx, cfg.Concatenate); err != nil {
		return err
	}
	log.Printf("Downloaded %d rows of %s day summaries", len(ba.Rows()), cfg.Coin)

	if cfg.CSVPath != "" {
		if err := ba.SaveCSV(cfg.CSVPath); err != nil {
			return fmt.Errorf("saving CSV: %w", err)
		}
		log.Printf("Saved dataset to %s", summary.NormalizeCSVPath(cfg.CSVPath))
	}

	return nil
}

func runAnalyze(ctx context.Context, cfg config.Config, ex exchange.Exchange, storage db.Storage) error {
	ba := newAnalysis(cfg, ex, storage)
	if err := loadDataset(ctx, cfg, ba); err != nil {
		return err
	}

	describe, err := ba.Describe()
	if err != nil {
		return err
	}
	printDescribe(describe)

	report, err := ba.Train(ctx, cfg.TestFraction, cfg.Comparison)
	if err != nil {
		return err
	}
	printTrainReport(report)

	if cfg.Comparison {
		printComparison(report.Comparison)
	}

	return nil
}

func runPredict(ctx context.Context, cfg config.Config, ex exchange.Exchange, storage db.Storage, n notifier.Notifier) error {
	ba := newAnalysis(cfg, ex, storage)
	if err := loadDataset(ctx, cfg, ba); err != nil {
		return err
	}

	if _, err := ba.Train(ctx, cfg.TestFraction, false); err != nil {
		return err
	}

	predictions, err := ba.Predict(ctx, cfg.PredictDays, cfg.UseStd, cfg.PctStd)
	if err != nil {
		return err
	}

	t := table.Table{Headers: []string{"Date", "Average Price"}}
	var lines []string
	for _, p := range predictions {
		t.Rows = append(t.Rows, []string{p.Date.Format("2006-01-02"), fmt.Sprintf("%.2f", p.AvgPrice)})
		lines = append(lines, fmt.Sprintf("%s: R$ %.2f", p.Date.Format("2006-01-02"), p.AvgPrice))
	}
	if err := t.WriteTable(os.Stdout, nil); err != nil {
		return err
	}

	if err := n.SendWithRetry(fmt.Sprintf("%s average price forecast:\n%s", cfg.Coin, strings.Join(lines, "\n"))); err != nil {
		log.Printf("Failed to send forecast notification: %v", err)
	}

	return nil
}

func runMarket(ctx context.Context, cfg config.Config, ex exchange.Exchange, storage db.Storage) error {
	ticker, err := ex.Ticker(ctx, cfg.Coin)
	if err != nil {
		return err
	}

	t := table.Table{
		Headers: []string{"Coin", "Last", "Buy", "Sell", "High", "Low", "Vol", "Date"},
		Rows: [][]string{{
			ticker.Coin,
			fmt.Sprintf("%.2f", ticker.Last),
			fmt.Sprintf("%.2f", ticker.Buy),
			fmt.Sprintf("%.2f", ticker.Sell),
			fmt.Sprintf("%.2f", ticker.High),
			fmt.Sprintf("%.2f", ticker.Low),
			fmt.Sprintf("%.8f", ticker.Vol),
			ticker.Date.Format(time.RFC3339),
		}},
	}
	if err := t.WriteTable(os.Stdout, nil); err != nil {
		return err
	}

	ob, err := ex.OrderBook(ctx, cfg.Coin)
	if err != nil {
		return err
	}
	if err := storage.SaveOrderBook(ctx, ob); err != nil {
		return fmt.Errorf("saving orderbook: %w", err)
	}
	log.Printf("Saved orderbook snapshot with %d bids and %d asks", len(ob.Bids), len(ob.Asks))

	trades, err := ex.Trades(ctx, cfg.Coin)
	if err != nil {
		return err
	}
	if err := storage.SaveTrades(ctx, trades); err != nil {
		return fmt.Errorf("saving trades: %w", err)
	}
	log.Printf("Saved %d recent trades", len(trades))

	return storage.LogEvent(ctx, journal.Event{
		Time:        time.Now(),
		Type:        "market",
		Description: "market_snapshot_saved",
		Data:        map[string]any{"coin": cfg.Coin, "trades": len(trades)},
	})
}

func runAccount(ctx context.Context, cfg config.Config, ex exchange.Exchange) error {
	balances, err := ex.AccountInfo(ctx, cfg.Assets)
	if err != nil {
		return err
	}

	t := table.Table{Headers: []string{"Asset", "Available", "Total", "Open Orders"}}
	for _, b := range balances {
		t.Rows = append(t.Rows, []string{
			b.Asset,
			b.Available.String(),
			b.Total.String(),
			fmt.Sprintf("%d", b.AmountOpenOrders),
		})
	}

	return t.WriteTable(os.Stdout, nil)
}

func runOrders(ctx context.Context, cfg config.Config, ex exchange.Exchange, storage db.Storage) error {
	orders, err := ex.ListOrders(ctx, cfg.Coin)
	if err != nil {
		return err
	}

	t := table.Table{Headers: []string{"Order ID", "Coin", "Side", "Status", "Quantity", "Limit Price", "Executed", "Created"}}
	for _, o := range orders {
		if err := storage.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("saving order %d: %w", o.OrderID, err)
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%d", o.OrderID),
			o.Coin,
			o.Side,
			o.Status,
			o.Quantity.String(),
			o.LimitPrice.String(),
			o.ExecutedQty.String(),
			o.CreatedAt.Format(time.RFC3339),
		})
	}

	return t.WriteTable(os.Stdout, nil)
}

func printDescribe(describe map[string]summary.ColumnStats) {
	t := table.Table{Headers: []string{"Column", "Count", "Mean", "Std", "Min", "25%", "50%", "75%", "Max"}}
	for _, col := range summary.Columns {
		cs := describe[col]
		t.Rows = append(t.Rows, []string{
			col,
			fmt.Sprintf("%d", cs.Count),
			fmt.Sprintf("%.2f", cs.Mean),
			fmt.Sprintf("%.2f", cs.Std),
			fmt.Sprintf("%.2f", cs.Min),
			fmt.Sprintf("%.2f", cs.Q25),
			fmt.Sprintf("%.2f", cs.Median),
			fmt.Sprintf("%.2f", cs.Q75),
			fmt.Sprintf("%.2f", cs.Max),
		})
	}
	if err := t.WriteTable(os.Stdout, nil); err != nil {
		log.Printf("Error printing describe table: %v", err)
	}
}

func printTrainReport(report *analyzer.TrainReport) {
	log.Println("Training results:")
	log.Printf("  MAE:   %.4f", report.MAE)
	log.Printf("  MSE:   %.4f", report.MSE)
	log.Printf("  RMSE:  %.4f", report.RMSE)
	log.Printf("  R2:    %.4f", report.R2)
	log.Printf("  Model: avg_price = %.4f + %.4f*opening (train=%d test=%d)",
		report.Alpha, report.Beta, report.TrainSize, report.TestSize)
}

func printComparison(rows []analyzer.ComparisonRow) {
	t := table.Table{Headers: []string{"Date", "Real", "Predicted", "Diff", "% Change"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.Date.Format("2006-01-02"),
			fmt.Sprintf("%.2f", r.Real),
			fmt.Sprintf("%.2f", r.Predicted),
			fmt.Sprintf("%.2f", r.Diff),
			fmt.Sprintf("%.4f", r.PctChange),
		})
	}
	if err := t.WriteTable(os.Stdout, nil); err != nil {
		log.Printf("Error printing comparison table: %v", err)
	}
}

// runMigrations creates the database if it doesn't exist and runs the schema.sql script
func runMigrations(ctx context.Context, connStr string) error {
	log.Println("Running database migrations...")

	if connStr == "" {
		return fmt.Errorf("migrations require a database connection string")
	}

	// Parse connection string to extract database name
	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	// Create a connection string to the postgres database to create our database
	baseConnStr := fmt.Sprintf("postgres://%s:%s@%s/postgres%s",
		u.User.Username(),
		func() string {
			p, _ := u.User.Password()
			return p
		}(),
		u.Host,
		func() string {
			if u.RawQuery != "" {
				return "?" + u.RawQuery
			}
			return ""
		}())

	// Connect to the postgres database
	baseDB, err := sql.Open("postgres", baseConnStr)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	// Check if our database exists
	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	// Create the database if it doesn't exist
	if !exists {
		log.Printf("Creating database %s...", dbName)
		_, err = baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName)))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	// Connect to our database
	targetDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer targetDB.Close()

	// Read the schema.sql file
	schemaSQL, err := os.ReadFile("scripts/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	// Execute the schema.sql script
	_, err = targetDB.ExecContext(ctx, string(schemaSQL))
	if err != nil {
		return fmt.Errorf("failed to execute schema.sql: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}
