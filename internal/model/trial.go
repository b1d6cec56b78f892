package model

import (
	"math"

	"github.com/harvest-data/spectra.report/internal/spectra"
	"gonum.org/v1/gonum/stat"
)

// Hyperparams maps hyperparameter names to values. Discrete parameters
// (component counts, tree depths) are stored as whole-valued floats.
type Hyperparams map[string]float64

// Prediction pairs one test sample's observed reference with the
// model's prediction for it.
type Prediction struct {
	UniqueID  string
	Observed  float64
	Predicted float64
}

// Metrics are the scalar quality measures computed on a test partition.
type Metrics struct {
	RMSE     float64
	RSquared float64
	RPD      float64
	Bias     float64
}

// TrialResult is the outcome of one (pretreatment, iteration) trial.
// Results are immutable after creation; failed trials carry an error
// tag and empty predictions instead of aborting the batch.
type TrialResult struct {
	Pretreatment spectra.Pretreatment
	Iteration    int
	Hyperparams  Hyperparams
	Predictions  []Prediction
	Metrics      Metrics
	Err          string
}

// Failed reports whether the trial recorded an error instead of metrics.
func (r *TrialResult) Failed() bool { return r.Err != "" }

// computeMetrics derives RMSE, R^2, RPD and bias from observed and
// predicted values. Degenerate cases (zero variance, zero RMSE) yield
// zero rather than Inf so summaries stay finite.
func computeMetrics(obs, pred []float64) Metrics {
	n := len(obs)
	var sse, sbias float64
	for i := range obs {
		d := pred[i] - obs[i]
		sse += d * d
		sbias += d
	}
	rmse := math.Sqrt(sse / float64(n))
	mean := stat.Mean(obs, nil)
	var sst float64
	for _, o := range obs {
		d := o - mean
		sst += d * d
	}
	m := Metrics{
		RMSE: rmse,
		Bias: sbias / float64(n),
	}
	if sst > 0 {
		m.RSquared = 1 - sse/sst
	}
	if rmse > 0 {
		m.RPD = stat.StdDev(obs, nil) / rmse
	}
	return m
}
