package summary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSummary() DaySummary {
	return DaySummary{
		Date:     time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		Coin:     "BTC",
		Opening:  251913.28,
		Closing:  255200.00,
		Lowest:   250000.00,
		Highest:  256500.00,
		Volume:   1234.5,
		Quantity: 4.9,
		Amount:   140,
		AvgPrice: 253000.10,
	}
}

func TestDaySummaryValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DaySummary)
		wantErr string
	}{
		{
			name:   "valid summary",
			mutate: func(s *DaySummary) {},
		},
		{
			name:    "zero date",
			mutate:  func(s *DaySummary) { s.Date = time.Time{} },
			wantErr: "date is zero",
		},
		{
			name:    "empty coin",
			mutate:  func(s *DaySummary) { s.Coin = "" },
			wantErr: "coin cannot be empty",
		},
		{
			name:    "non-positive opening",
			mutate:  func(s *DaySummary) { s.Opening = 0 },
			wantErr: "prices must be positive",
		},
		{
			name: "highest below lowest",
			mutate: func(s *DaySummary) {
				s.Highest = 100
				s.Lowest = 200
				s.Opening = 150
				s.Closing = 150
			},
			wantErr: "highest cannot be less than lowest",
		},
		{
			name:    "opening outside range",
			mutate:  func(s *DaySummary) { s.Opening = 300000 },
			wantErr: "opening price must be between",
		},
		{
			name:    "closing outside range",
			mutate:  func(s *DaySummary) { s.Closing = 100000 },
			wantErr: "closing price must be between",
		},
		{
			name:    "negative volume",
			mutate:  func(s *DaySummary) { s.Volume = -1 },
			wantErr: "volume and quantity cannot be negative",
		},
		{
			name:    "negative amount",
			mutate:  func(s *DaySummary) { s.Amount = -1 },
			wantErr: "amount cannot be negative",
		},
		{
			name:    "non-positive average price",
			mutate:  func(s *DaySummary) { s.AvgPrice = 0 },
			wantErr: "average price must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSummary()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestColumn(t *testing.T) {
	rows := []DaySummary{validSummary()}

	opening, err := Column(rows, "opening")
	require.NoError(t, err)
	assert.Equal(t, []float64{251913.28}, opening)

	amount, err := Column(rows, "amount")
	require.NoError(t, err)
	assert.Equal(t, []float64{140}, amount)

	_, err = Column(rows, "nope")
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	base := validSummary()
	rows := make([]DaySummary, 0, 4)
	for i, avg := range []float64{252000, 253000, 254000, 255000} {
		s := base
		s.Date = base.Date.AddDate(0, 0, i)
		s.AvgPrice = avg
		rows = append(rows, s)
	}

	describe, err := Describe(rows)
	require.NoError(t, err)

	avg := describe["avg_price"]
	assert.Equal(t, 4, avg.Count)
	assert.InDelta(t, 253500, avg.Mean, 1e-9)
	assert.InDelta(t, 252000, avg.Min, 1e-9)
	assert.InDelta(t, 255000, avg.Max, 1e-9)
	assert.InDelta(t, 253500, avg.Median, 1e-9)
	// Sample std of {252000,253000,254000,255000}
	assert.InDelta(t, 1290.9944, avg.Std, 1e-3)

	// Constant column has zero spread
	opening := describe["opening"]
	assert.InDelta(t, 0, opening.Std, 1e-9)
	assert.InDelta(t, opening.Min, opening.Max, 1e-9)
}

func TestDescribeEmpty(t *testing.T) {
	_, err := Describe(nil)
	assert.Error(t, err)
}
