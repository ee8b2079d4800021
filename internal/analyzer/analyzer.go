// Package analyzer
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minterciso/mercadobtc-utils/internal/journal"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
	"github.com/minterciso/mercadobtc-utils/internal/utils"
)

// DataSource provides day summaries, one day per request.
type DataSource interface {
	DaySummary(ctx context.Context, coin string, day time.Time) (summary.DaySummary, error)
}

// BasicAnalysis downloads day-summary data for a coin and runs a simple
// linear-regression analysis over it to estimate the daily average price.
type BasicAnalysis struct {
	InitialDate time.Time // first day to download
	EndDate     time.Time // non inclusive
	Coin        string

	source  DataSource
	storage summary.Storage   // optional, persists downloaded rows
	journal journal.Journaler // optional

	rows  []summary.DaySummary
	model *Model
}

// New creates a BasicAnalysis for a coin. The date range defaults to the
// last 90 days. storage and journaler may be nil.
func New(coin string, source DataSource, storage summary.Storage, j journal.Journaler) *BasicAnalysis {
	now := time.Now().UTC()
	return &BasicAnalysis{
		InitialDate: now.AddDate(0, 0, -90).Truncate(24 * time.Hour),
		EndDate:     now.Truncate(24 * time.Hour),
		Coin:        coin,
		source:      source,
		storage:     storage,
		journal:     j,
	}
}

// Rows returns the currently loaded dataset.
func (b *BasicAnalysis) Rows() []summary.DaySummary {
	return b.rows
}

// SetRows replaces the dataset. Mostly useful for tests and CSV workflows.
func (b *BasicAnalysis) SetRows(rows []summary.DaySummary) {
	b.rows = rows
	b.model = nil
}

// Model returns the trained model, or nil when Train was not called yet.
func (b *BasicAnalysis) Model() *Model {
	return b.model
}

// DownloadSummaries fetches one day summary per day in [InitialDate, EndDate).
// When concatenate is true the new rows are appended to whatever is already
// loaded, otherwise the dataset is replaced.
func (b *BasicAnalysis) DownloadSummaries(ctx context.Context, concatenate bool) error {
	if !b.EndDate.After(b.InitialDate) {
		return fmt.Errorf("end date %s must be after initial date %s",
			b.EndDate.Format("2006-01-02"), b.InitialDate.Format("2006-01-02"))
	}

	numDays := int(b.EndDate.Sub(b.InitialDate).Hours() / 24)
	utils.GetLogger().Printf("Analyzer | Downloading %d days of %s summary data", numDays, b.Coin)

	rows := make([]summary.DaySummary, 0, numDays)
	for i := 0; i < numDays; i++ {
		day := b.InitialDate.AddDate(0, 0, i)
		s, err := b.source.DaySummary(ctx, b.Coin, day)
		if err != nil {
			return fmt.Errorf("downloading summary for %s: %w", day.Format("2006-01-02"), err)
		}
		if err := s.Validate(); err != nil {
			utils.GetLogger().Printf("Analyzer | Skipping invalid summary for %s: %v", day.Format("2006-01-02"), err)
			continue
		}
		rows = append(rows, s)
	}

	if concatenate {
		b.rows = append(b.rows, rows...)
	} else {
		b.rows = rows
	}
	b.model = nil

	if b.storage != nil {
		if err := b.storage.SaveDaySummaries(ctx, rows); err != nil {
			return fmt.Errorf("persisting downloaded summaries: %w", err)
		}
	}
	if b.journal != nil {
		err := b.journal.LogEvent(ctx, journal.Event{
			Time:        time.Now(),
			Type:        "download",
			Description: "day_summaries_downloaded",
			Data: map[string]any{
				"coin": b.Coin,
				"from": b.InitialDate.Format("2006-01-02"),
				"to":   b.EndDate.Format("2006-01-02"),
				"rows": len(rows),
			},
		})
		if err != nil {
			utils.GetLogger().Printf("Analyzer | Failed to journal download event: %v", err)
		}
	}

	utils.GetLogger().Printf("Analyzer | Downloaded %d rows of %s summary data", len(rows), b.Coin)
	return nil
}

// LoadStored loads the dataset from storage instead of downloading it.
func (b *BasicAnalysis) LoadStored(ctx context.Context) error {
	if b.storage == nil {
		return errors.New("no storage configured")
	}
	rows, err := b.storage.GetDaySummaries(ctx, b.Coin, b.InitialDate, b.EndDate)
	if err != nil {
		return fmt.Errorf("loading stored summaries: %w", err)
	}
	b.rows = rows
	b.model = nil
	return nil
}

// SaveCSV writes the dataset to a CSV file.
func (b *BasicAnalysis) SaveCSV(path string) error {
	return summary.WriteCSV(path, b.rows)
}

// LoadCSV reads a dataset previously written with SaveCSV.
func (b *BasicAnalysis) LoadCSV(path string) error {
	rows, err := summary.ReadCSV(path)
	if err != nil {
		return err
	}
	b.rows = rows
	b.model = nil
	return nil
}

// Describe computes descriptive statistics of the dataset.
func (b *BasicAnalysis) Describe() (map[string]summary.ColumnStats, error) {
	return summary.Describe(b.rows)
}

// Direction reports whether the average price is rising: the mean of the
// diffs over the last 3 average prices must be positive. With a shorter
// dataset it uses whatever rows are available, but needs at least 2.
func (b *BasicAnalysis) Direction() (bool, error) {
	if len(b.rows) < 2 {
		return false, errors.New("direction needs at least 2 rows")
	}

	tail := b.rows
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}

	sum := 0.0
	for i := 1; i < len(tail); i++ {
		sum += tail[i].AvgPrice - tail[i-1].AvgPrice
	}
	mean := sum / float64(len(tail)-1)

	return mean > 0, nil
}
