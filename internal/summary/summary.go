// Package summary
package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// DaySummary is one row of the day-summary endpoint: the daily OHLC,
// traded volume and average price of a coin.
type DaySummary struct {
	Date     time.Time `json:"date"`
	Coin     string    `json:"coin"`
	Opening  float64   `json:"opening"`
	Closing  float64   `json:"closing"`
	Lowest   float64   `json:"lowest"`
	Highest  float64   `json:"highest"`
	Volume   float64   `json:"volume"`
	Quantity float64   `json:"quantity"`
	Amount   int       `json:"amount"`
	AvgPrice float64   `json:"avg_price"`
}

// Validate checks if a day summary has valid data
func (s *DaySummary) Validate() error {
	if s.Date.IsZero() {
		return errors.New("summary date is zero")
	}
	if s.Coin == "" {
		return errors.New("summary coin cannot be empty")
	}
	if s.Opening <= 0 || s.Closing <= 0 || s.Lowest <= 0 || s.Highest <= 0 {
		return errors.New("summary prices must be positive")
	}
	if s.Highest < s.Lowest {
		return errors.New("summary highest cannot be less than lowest")
	}
	if s.Opening < s.Lowest || s.Opening > s.Highest {
		return errors.New("summary opening price must be between highest and lowest")
	}
	if s.Closing < s.Lowest || s.Closing > s.Highest {
		return errors.New("summary closing price must be between highest and lowest")
	}
	if s.Volume < 0 || s.Quantity < 0 {
		return errors.New("summary volume and quantity cannot be negative")
	}
	if s.Amount < 0 {
		return errors.New("summary amount cannot be negative")
	}
	if s.AvgPrice <= 0 {
		return errors.New("summary average price must be positive")
	}
	return nil
}

// Storage interface for managing day-summary persistence.
type Storage interface {
	SaveDaySummary(ctx context.Context, s DaySummary) error
	SaveDaySummaries(ctx context.Context, ss []DaySummary) error
	GetDaySummaries(ctx context.Context, coin string, start, end time.Time) ([]DaySummary, error)
	GetLatestDaySummary(ctx context.Context, coin string) (*DaySummary, error)
}

// ColumnStats holds pandas-describe style statistics for one numeric column.
type ColumnStats struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// Columns lists the numeric columns of a day summary, in presentation order.
var Columns = []string{"opening", "closing", "lowest", "highest", "volume", "quantity", "amount", "avg_price"}

// Column extracts a numeric column by name from a dataset.
func Column(rows []DaySummary, name string) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		switch name {
		case "opening":
			out[i] = r.Opening
		case "closing":
			out[i] = r.Closing
		case "lowest":
			out[i] = r.Lowest
		case "highest":
			out[i] = r.Highest
		case "volume":
			out[i] = r.Volume
		case "quantity":
			out[i] = r.Quantity
		case "amount":
			out[i] = float64(r.Amount)
		case "avg_price":
			out[i] = r.AvgPrice
		default:
			return nil, fmt.Errorf("unknown column: %s", name)
		}
	}
	return out, nil
}

// Describe computes count/mean/std/min/quartiles/max for every numeric column.
func Describe(rows []DaySummary) (map[string]ColumnStats, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot describe an empty dataset")
	}
	out := make(map[string]ColumnStats, len(Columns))
	for _, col := range Columns {
		values, err := Column(rows, col)
		if err != nil {
			return nil, err
		}
		cs, err := describeColumn(values)
		if err != nil {
			return nil, fmt.Errorf("describing column %s: %w", col, err)
		}
		out[col] = cs
	}
	return out, nil
}

func describeColumn(values []float64) (ColumnStats, error) {
	mean, err := stats.Mean(values)
	if err != nil {
		return ColumnStats{}, err
	}
	// Sample standard deviation, the same flavor pandas reports.
	std := 0.0
	if len(values) > 1 {
		std, err = stats.StandardDeviationSample(values)
		if err != nil {
			return ColumnStats{}, err
		}
	}
	min, err := stats.Min(values)
	if err != nil {
		return ColumnStats{}, err
	}
	max, err := stats.Max(values)
	if err != nil {
		return ColumnStats{}, err
	}
	median, err := stats.Median(values)
	if err != nil {
		return ColumnStats{}, err
	}
	q25, err := stats.Percentile(values, 25)
	if err != nil {
		q25 = median
	}
	q75, err := stats.Percentile(values, 75)
	if err != nil {
		q75 = median
	}
	return ColumnStats{
		Count:  len(values),
		Mean:   mean,
		Std:    std,
		Min:    min,
		Q25:    q25,
		Median: median,
		Q75:    q75,
		Max:    max,
	}, nil
}
