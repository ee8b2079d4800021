package summary

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCSVPath(t *testing.T) {
	assert.Equal(t, "data.csv", NormalizeCSVPath("data.csv"))
	assert.Equal(t, "data.CSV", NormalizeCSVPath("data.CSV"))
	assert.Equal(t, "data.csv", NormalizeCSVPath("data"))
	assert.Equal(t, "data.txt.csv", NormalizeCSVPath("data.txt"))
}

func TestWriteCSVEmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	err := WriteCSV(path, nil)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "empty dataset must not create a file")
}

func TestWriteReadCSVRoundTrip(t *testing.T) {
	rows := []DaySummary{
		{
			Date:     time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
			Coin:     "BTC",
			Opening:  251913.28,
			Closing:  255200,
			Lowest:   250000,
			Highest:  256500,
			Volume:   1234.5,
			Quantity: 4.9,
			Amount:   140,
			AvgPrice: 253000.1,
		},
		{
			Date:     time.Date(2021, 9, 2, 0, 0, 0, 0, time.UTC),
			Coin:     "BTC",
			Opening:  255000,
			Closing:  257100,
			Lowest:   254000,
			Highest:  258000,
			Volume:   987.1,
			Quantity: 3.8,
			Amount:   120,
			AvgPrice: 256200.5,
		},
	}

	// Path without .csv suffix, WriteCSV must append it
	path := filepath.Join(t.TempDir(), "summary")
	require.NoError(t, WriteCSV(path, rows))

	_, err := os.Stat(path + ".csv")
	require.NoError(t, err)

	// ReadCSV applies the same normalization
	got, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[0].Date, got[0].Date)
	assert.Equal(t, rows[0].Coin, got[0].Coin)
	assert.InDelta(t, rows[0].Opening, got[0].Opening, 1e-9)
	assert.InDelta(t, rows[0].AvgPrice, got[0].AvgPrice, 1e-9)
	assert.Equal(t, rows[1].Amount, got[1].Amount)
	assert.InDelta(t, rows[1].Volume, got[1].Volume, 1e-9)
}

func TestReadCSVErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadCSV(filepath.Join(dir, "missing.csv"))
		assert.Error(t, err)
	})

	t.Run("header only", func(t *testing.T) {
		path := filepath.Join(dir, "header.csv")
		require.NoError(t, os.WriteFile(path, []byte("date,coin,opening,closing,lowest,highest,volume,quantity,amount,avg_price\n"), 0644))
		_, err := ReadCSV(path)
		assert.Error(t, err)
	})

	t.Run("bad date", func(t *testing.T) {
		path := filepath.Join(dir, "baddate.csv")
		content := "date,coin,opening,closing,lowest,highest,volume,quantity,amount,avg_price\n" +
			"not-a-date,BTC,1,1,1,1,1,1,1,1\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		_, err := ReadCSV(path)
		assert.Error(t, err)
	})
}
