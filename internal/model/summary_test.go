package model

import (
	"math"
	"testing"

	"github.com/harvest-data/spectra.report/internal/spectra"
)

func trial(p spectra.Pretreatment, iter int, rmse, rsq float64, ncomp float64) TrialResult {
	return TrialResult{
		Pretreatment: p,
		Iteration:    iter,
		Hyperparams:  Hyperparams{"ncomp": ncomp},
		Metrics:      Metrics{RMSE: rmse, RSquared: rsq, RPD: 1 / rmse, Bias: 0.1},
	}
}

func TestSummarizeGroupsAndReduces(t *testing.T) {
	results := []TrialResult{
		trial(spectra.PretreatRaw, 1, 1.0, 0.90, 5),
		trial(spectra.PretreatRaw, 2, 2.0, 0.80, 5),
		trial(spectra.PretreatRaw, 3, 3.0, 0.70, 7),
		trial(spectra.PretreatSNV, 1, 0.5, 0.95, 3),
		{Pretreatment: spectra.PretreatSNV, Iteration: 2, Err: "did not converge"},
	}
	sums := Summarize(results)
	if len(sums) != 2 {
		t.Fatalf("summaries = %d, want 2", len(sums))
	}

	raw := sums[0]
	if raw.Pretreatment != spectra.PretreatRaw {
		t.Fatalf("first summary is %s, want raw (id order)", raw.Pretreatment)
	}
	if raw.Trials != 3 || raw.Failures != 0 {
		t.Errorf("raw trials/failures = %d/%d", raw.Trials, raw.Failures)
	}
	if math.Abs(raw.RMSEMean-2.0) > 1e-12 {
		t.Errorf("raw RMSE mean = %g, want 2.0", raw.RMSEMean)
	}
	if raw.ModalHyperparams["ncomp"] != 5 {
		t.Errorf("raw modal ncomp = %v, want 5", raw.ModalHyperparams["ncomp"])
	}

	snv := sums[1]
	if snv.Trials != 2 || snv.Failures != 1 {
		t.Errorf("snv trials/failures = %d/%d, want 2/1", snv.Trials, snv.Failures)
	}
	if math.Abs(snv.RMSEMean-0.5) > 1e-12 {
		t.Errorf("snv RMSE mean = %g, want 0.5 (failures excluded)", snv.RMSEMean)
	}
}

func TestModeTiesBreakLow(t *testing.T) {
	if m := mode([]float64{3, 7, 7, 3, 9}); m != 3 {
		t.Errorf("mode = %v, want 3 (tie breaks low)", m)
	}
	if m := mode([]float64{4}); m != 4 {
		t.Errorf("mode of singleton = %v", m)
	}
}

func TestSelectBestRMSEAndRSquared(t *testing.T) {
	sums := []PretreatmentSummary{
		{Pretreatment: spectra.PretreatRaw, Trials: 3, RMSEMean: 1.5, RSquaredMean: 0.80},
		{Pretreatment: spectra.PretreatSNV, Trials: 3, RMSEMean: 2.0, RSquaredMean: 0.60},
	}
	best, err := SelectBest(sums, SelectRMSE)
	if err != nil {
		t.Fatalf("SelectBest: %v", err)
	}
	if best.Pretreatment != spectra.PretreatRaw {
		t.Errorf("best by RMSE = %s, want raw (1.5 < 2.0)", best.Pretreatment)
	}

	best, err = SelectBest(sums, SelectRSquared)
	if err != nil {
		t.Fatalf("SelectBest: %v", err)
	}
	if best.Pretreatment != spectra.PretreatRaw {
		t.Errorf("best by Rsquared = %s, want raw (0.80 > 0.60)", best.Pretreatment)
	}
}

func TestSelectBestTieBreaksLowestID(t *testing.T) {
	sums := []PretreatmentSummary{
		{Pretreatment: spectra.PretreatSNV, Trials: 1, RMSEMean: 1.0},
		{Pretreatment: spectra.PretreatRaw, Trials: 1, RMSEMean: 1.0},
	}
	best, err := SelectBest(sums, SelectRMSE)
	if err != nil {
		t.Fatalf("SelectBest: %v", err)
	}
	if best.Pretreatment != spectra.PretreatRaw {
		t.Errorf("tie broke to %s, want the lower pretreatment id", best.Pretreatment)
	}
}

func TestSelectBestSkipsAllFailed(t *testing.T) {
	sums := []PretreatmentSummary{
		{Pretreatment: spectra.PretreatRaw, Trials: 2, Failures: 2},
		{Pretreatment: spectra.PretreatSNV, Trials: 2, Failures: 1, RMSEMean: 3.0},
	}
	best, err := SelectBest(sums, SelectRMSE)
	if err != nil {
		t.Fatalf("SelectBest: %v", err)
	}
	if best.Pretreatment != spectra.PretreatSNV {
		t.Errorf("best = %s, want snv (raw has no successful trial)", best.Pretreatment)
	}

	allFailed := sums[:1]
	if _, err := SelectBest(allFailed, SelectRMSE); err == nil {
		t.Error("expected error when every pretreatment failed")
	}
}

func TestSelectBestUnknownMetric(t *testing.T) {
	if _, err := SelectBest(nil, SelectMetric("MAE")); err == nil {
		t.Error("expected error for unknown metric")
	}
}
