package summary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyDataset is returned when a CSV write is requested for a dataset
// with no rows in it.
var ErrEmptyDataset = errors.New("summary dataset is empty")

var csvHeader = []string{"date", "coin", "opening", "closing", "lowest", "highest", "volume", "quantity", "amount", "avg_price"}

// NormalizeCSVPath cleans the path and forces a .csv suffix.
func NormalizeCSVPath(path string) string {
	normalized := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(normalized), ".csv") {
		normalized += ".csv"
	}
	return normalized
}

// WriteCSV saves the dataset to the file pointed by path, appending a .csv
// suffix when missing. The parent directory must already exist.
func WriteCSV(path string, rows []DaySummary) error {
	if len(rows) == 0 {
		return ErrEmptyDataset
	}

	normalized := NormalizeCSVPath(path)
	f, err := os.Create(normalized)
	if err != nil {
		return fmt.Errorf("creating CSV file %s: %w", normalized, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Date.Format("2006-01-02"),
			r.Coin,
			strconv.FormatFloat(r.Opening, 'f', -1, 64),
			strconv.FormatFloat(r.Closing, 'f', -1, 64),
			strconv.FormatFloat(r.Lowest, 'f', -1, 64),
			strconv.FormatFloat(r.Highest, 'f', -1, 64),
			strconv.FormatFloat(r.Volume, 'f', -1, 64),
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
			strconv.Itoa(r.Amount),
			strconv.FormatFloat(r.AvgPrice, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing CSV row for %s: %w", r.Date.Format("2006-01-02"), err)
		}
	}

	return nil
}

// ReadCSV loads a dataset previously written with WriteCSV.
func ReadCSV(path string) ([]DaySummary, error) {
	normalized := NormalizeCSVPath(path)
	f, err := os.Open(normalized)
	if err != nil {
		return nil, fmt.Errorf("opening CSV file %s: %w", normalized, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV file %s: %w", normalized, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file %s has no data rows", normalized)
	}

	rows := make([]DaySummary, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(csvHeader) {
			return nil, fmt.Errorf("CSV row %d has %d fields, want %d", i+2, len(record), len(csvHeader))
		}
		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return nil, fmt.Errorf("CSV row %d has invalid date %q: %w", i+2, record[0], err)
		}
		fields := make([]float64, 8)
		for j, idx := range []int{2, 3, 4, 5, 6, 7, 8, 9} {
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return nil, fmt.Errorf("CSV row %d column %s is not numeric: %w", i+2, csvHeader[idx], err)
			}
			fields[j] = v
		}
		rows = append(rows, DaySummary{
			Date:     date,
			Coin:     record[1],
			Opening:  fields[0],
			Closing:  fields[1],
			Lowest:   fields[2],
			Highest:  fields[3],
			Volume:   fields[4],
			Quantity: fields[5],
			Amount:   int(fields[6]),
			AvgPrice: fields[7],
		})
	}

	return rows, nil
}
