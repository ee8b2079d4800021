package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/minterciso/mercadobtc-utils/internal/journal"
	"github.com/minterciso/mercadobtc-utils/internal/summary"
	"github.com/minterciso/mercadobtc-utils/internal/utils"
)

// Model is a single-feature linear model: avg price ~= Alpha + Beta*opening.
type Model struct {
	Alpha float64
	Beta  float64
}

// Estimate returns the model output for one opening price.
func (m *Model) Estimate(opening float64) float64 {
	return m.Alpha + m.Beta*opening
}

// TrainReport holds the error metrics of a training run against the held-out
// test rows, plus the fitted coefficients.
type TrainReport struct {
	MAE       float64
	MSE       float64
	RMSE      float64
	R2        float64
	Alpha     float64
	Beta      float64
	TrainSize int
	TestSize  int

	// Comparison is only filled when requested.
	Comparison []ComparisonRow
}

// ComparisonRow pairs a real test value with its prediction.
type ComparisonRow struct {
	Date      time.Time
	Real      float64
	Predicted float64
	Diff      float64
	PctChange float64
}

// Prediction is one day of forecast output.
type Prediction struct {
	Date     time.Time
	AvgPrice float64
}

// DefaultTestFraction is the share of rows held out for testing.
const DefaultTestFraction = 0.3

// Train fits a linear regression of avg price on opening price over a random
// train/test split and reports MAE, MSE, RMSE and R2 on the test rows. The
// fitted model is kept for Predict. When withComparison is set the report
// also carries the per-row real vs predicted values, sorted by date.
func (b *BasicAnalysis) Train(ctx context.Context, testFraction float64, withComparison bool) (*TrainReport, error) {
	if len(b.rows) < 4 {
		return nil, fmt.Errorf("training needs at least 4 rows, have %d", len(b.rows))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	n := len(b.rows)
	nTest := int(math.Round(float64(n) * testFraction))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-2 {
		nTest = n - 2
	}

	indices := rand.Perm(n)
	testIdx := indices[:nTest]
	trainIdx := indices[nTest:]

	xTrain := make([]float64, len(trainIdx))
	yTrain := make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		xTrain[i] = b.rows[idx].Opening
		yTrain[i] = b.rows[idx].AvgPrice
	}

	alpha, beta := stat.LinearRegression(xTrain, yTrain, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return nil, errors.New("regression did not converge, openings may be constant")
	}
	b.model = &Model{Alpha: alpha, Beta: beta}

	yTest := make([]float64, len(testIdx))
	yPred := make([]float64, len(testIdx))
	for i, idx := range testIdx {
		yTest[i] = b.rows[idx].AvgPrice
		yPred[i] = b.model.Estimate(b.rows[idx].Opening)
	}

	report := &TrainReport{
		Alpha:     alpha,
		Beta:      beta,
		TrainSize: len(trainIdx),
		TestSize:  len(testIdx),
	}
	for i := range yTest {
		diff := yTest[i] - yPred[i]
		report.MAE += math.Abs(diff)
		report.MSE += diff * diff
	}
	report.MAE /= float64(len(yTest))
	report.MSE /= float64(len(yTest))
	report.RMSE = math.Sqrt(report.MSE)
	report.R2 = stat.RSquaredFrom(yPred, yTest, nil)

	if withComparison {
		for i, idx := range testIdx {
			actual := yTest[i]
			predicted := yPred[i]
			pct := 0.0
			if actual != 0 {
				pct = (predicted - actual) / actual
			}
			report.Comparison = append(report.Comparison, ComparisonRow{
				Date:      b.rows[idx].Date,
				Real:      actual,
				Predicted: predicted,
				Diff:      actual - predicted,
				PctChange: pct,
			})
		}
		sort.Slice(report.Comparison, func(i, j int) bool {
			return report.Comparison[i].Date.Before(report.Comparison[j].Date)
		})
	}

	utils.GetLogger().Printf("Analyzer | Training results: MAE=%.4f MSE=%.4f RMSE=%.4f R2=%.4f alpha=%.4f beta=%.4f",
		report.MAE, report.MSE, report.RMSE, report.R2, report.Alpha, report.Beta)

	if b.journal != nil {
		err := b.journal.LogEvent(ctx, journal.Event{
			Time:        time.Now(),
			Type:        "training",
			Description: "summary_model_trained",
			Data: map[string]any{
				"coin": b.Coin,
				"mae":  report.MAE,
				"rmse": report.RMSE,
				"r2":   report.R2,
			},
		})
		if err != nil {
			utils.GetLogger().Printf("Analyzer | Failed to journal training event: %v", err)
		}
	}

	return report, nil
}

// Predict forecasts numDays of average prices starting from the last known
// day. The model was trained on opening prices, and future openings are
// unknown, so from the second day on the previous prediction is fed back as
// a synthetic opening. That feedback degrades fast; as a crude correction,
// useStd adds (or subtracts, when the dataset direction is falling) pctStd
// of the closing-price standard deviation on every fed-back value.
//
// The first returned entry echoes the last known day and its opening, which
// is the seed of the iteration.
func (b *BasicAnalysis) Predict(ctx context.Context, numDays int, useStd bool, pctStd float64) ([]Prediction, error) {
	if b.model == nil {
		return nil, errors.New("model not trained, call Train first")
	}
	if len(b.rows) == 0 {
		return nil, errors.New("no summary data loaded")
	}
	if numDays < 1 {
		return nil, fmt.Errorf("numDays must be at least 1, got %d", numDays)
	}
	if numDays > 4 {
		utils.GetLogger().Printf("Analyzer | Predicting %d days ahead, precision degrades a lot past 3-4 days", numDays)
	}

	rising := false
	if useStd {
		var err error
		rising, err = b.Direction()
		if err != nil {
			return nil, fmt.Errorf("computing dataset direction: %w", err)
		}
	}

	closings, err := summary.Column(b.rows, "closing")
	if err != nil {
		return nil, err
	}
	closingStd := stat.StdDev(closings, nil)

	last := b.rows[len(b.rows)-1]
	predictions := []Prediction{{Date: last.Date, AvgPrice: last.Opening}}

	for i := 1; i < numDays; i++ {
		prev := predictions[len(predictions)-1].AvgPrice
		value := b.model.Estimate(prev)
		if useStd {
			if rising {
				value += closingStd * pctStd
			} else {
				value -= closingStd * pctStd
			}
		}
		predictions = append(predictions, Prediction{
			Date:     last.Date.AddDate(0, 0, i),
			AvgPrice: value,
		})
	}

	if b.journal != nil {
		err := b.journal.LogEvent(ctx, journal.Event{
			Time:        time.Now(),
			Type:        "prediction",
			Description: "summary_prediction_generated",
			Data: map[string]any{
				"coin":    b.Coin,
				"days":    numDays,
				"use_std": useStd,
			},
		})
		if err != nil {
			utils.GetLogger().Printf("Analyzer | Failed to journal prediction event: %v", err)
		}
	}

	return predictions, nil
}
