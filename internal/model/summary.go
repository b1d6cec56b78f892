package model

import (
	"fmt"
	"sort"

	"github.com/harvest-data/spectra.report/internal/spectra"
	"gonum.org/v1/gonum/stat"
)

// PretreatmentSummary reduces a pretreatment's iterations to summary
// statistics: metric means and standard deviations, plus the modal value
// of each discrete hyperparameter across successful trials.
type PretreatmentSummary struct {
	Pretreatment spectra.Pretreatment
	Trials       int
	Failures     int

	RMSEMean     float64
	RMSESD       float64
	RSquaredMean float64
	RSquaredSD   float64
	RPDMean      float64
	BiasMean     float64

	ModalHyperparams Hyperparams
}

// Summarize groups trial results by pretreatment and reduces each
// group. Failed trials count toward Failures and contribute nothing to
// the statistics. Output is ordered by pretreatment id.
func Summarize(results []TrialResult) []PretreatmentSummary {
	byPretreat := map[spectra.Pretreatment][]TrialResult{}
	var order []spectra.Pretreatment
	for _, r := range results {
		if _, seen := byPretreat[r.Pretreatment]; !seen {
			order = append(order, r.Pretreatment)
		}
		byPretreat[r.Pretreatment] = append(byPretreat[r.Pretreatment], r)
	}
	sort.Slice(order, func(a, b int) bool { return order[a] < order[b] })

	summaries := make([]PretreatmentSummary, 0, len(order))
	for _, p := range order {
		group := byPretreat[p]
		s := PretreatmentSummary{Pretreatment: p, Trials: len(group)}

		var rmse, rsq, rpd, bias []float64
		hpValues := map[string][]float64{}
		for _, r := range group {
			if r.Failed() {
				s.Failures++
				continue
			}
			rmse = append(rmse, r.Metrics.RMSE)
			rsq = append(rsq, r.Metrics.RSquared)
			rpd = append(rpd, r.Metrics.RPD)
			bias = append(bias, r.Metrics.Bias)
			for k, v := range r.Hyperparams {
				hpValues[k] = append(hpValues[k], v)
			}
		}
		if len(rmse) > 0 {
			s.RMSEMean, s.RMSESD = stat.MeanStdDev(rmse, nil)
			s.RSquaredMean, s.RSquaredSD = stat.MeanStdDev(rsq, nil)
			s.RPDMean = stat.Mean(rpd, nil)
			s.BiasMean = stat.Mean(bias, nil)
			s.ModalHyperparams = make(Hyperparams, len(hpValues))
			for k, vals := range hpValues {
				s.ModalHyperparams[k] = mode(vals)
			}
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// mode returns the most frequent value; frequency ties break toward the
// smallest value so selection is deterministic.
func mode(vals []float64) float64 {
	counts := map[float64]int{}
	for _, v := range vals {
		counts[v]++
	}
	best := vals[0]
	bestCount := 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// SelectMetric names the metric driving best-pretreatment selection.
type SelectMetric string

const (
	SelectRMSE     SelectMetric = "RMSE"     // minimised
	SelectRSquared SelectMetric = "Rsquared" // maximised
)

// SelectBest picks the winning pretreatment from a summary set: lowest
// mean RMSE or highest mean R^2. Summaries with no successful trial are
// skipped; exact metric ties break toward the lowest pretreatment id.
// The winner's modal hyperparameters drive the final refit.
func SelectBest(summaries []PretreatmentSummary, metric SelectMetric) (PretreatmentSummary, error) {
	if metric != SelectRMSE && metric != SelectRSquared {
		return PretreatmentSummary{}, fmt.Errorf("select best: unknown metric %q", metric)
	}
	best := -1
	for i, s := range summaries {
		if s.Trials == s.Failures {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := summaries[best]
		var better bool
		switch metric {
		case SelectRMSE:
			better = s.RMSEMean < b.RMSEMean ||
				(s.RMSEMean == b.RMSEMean && s.Pretreatment < b.Pretreatment)
		case SelectRSquared:
			better = s.RSquaredMean > b.RSquaredMean ||
				(s.RSquaredMean == b.RSquaredMean && s.Pretreatment < b.Pretreatment)
		}
		if better {
			best = i
		}
	}
	if best < 0 {
		return PretreatmentSummary{}, fmt.Errorf("select best: no pretreatment has a successful trial")
	}
	return summaries[best], nil
}
