package model

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/harvest-data/spectra.report/internal/spectra"
	"gonum.org/v1/gonum/stat"
)

// signalTable builds n labeled spectra whose reference is linear in the
// overall intensity level, a signal PLS recovers easily.
func signalTable(t *testing.T, rng *rand.Rand, n, p int) *spectra.Table {
	t.Helper()
	ids := make([]string, n)
	refs := make([]float64, n)
	x := make([][]float64, n)
	wl := make([]int, p)
	for j := range wl {
		wl[j] = 1350 + 2*j
	}
	for i := 0; i < n; i++ {
		ids[i] = "plot" + strconv.Itoa(i)
		level := rng.Float64()
		row := make([]float64, p)
		for j := range row {
			base := 0.3 + 0.2*math.Sin(float64(j)*0.2)
			row[j] = base + 0.5*level + rng.NormFloat64()*0.002
		}
		x[i] = row
		refs[i] = 15 + 10*level + rng.NormFloat64()*0.01
	}
	tbl, err := spectra.NewTable(ids, refs, nil, nil, wl, x)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestRunRecoversLinearSignal(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	tbl := signalTable(t, rng, 50, 40)

	cfg := LoopConfig{
		Pretreatments: []spectra.Pretreatment{spectra.PretreatRaw},
		Iterations:    3,
		TuneLength:    5,
		Seed:          123,
		Strategy:      PLS{},
	}
	results, err := Run(context.Background(), tbl, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	refSD := stat.StdDev(tbl.Refs, nil)
	var rmseSum float64
	for _, r := range results {
		if r.Failed() {
			t.Fatalf("trial (%s, %d) failed: %s", r.Pretreatment, r.Iteration, r.Err)
		}
		rmseSum += r.Metrics.RMSE
		if len(r.Predictions) == 0 {
			t.Errorf("trial (%s, %d) recorded no predictions", r.Pretreatment, r.Iteration)
		}
	}
	avgRMSE := rmseSum / float64(len(results))
	if avgRMSE > 0.1*refSD {
		t.Errorf("average RMSE %g exceeds 0.1*sd(y) = %g; pipeline lost a learnable signal", avgRMSE, 0.1*refSD)
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	tbl := signalTable(t, rng, 40, 30)

	base := LoopConfig{
		Pretreatments: []spectra.Pretreatment{spectra.PretreatRaw, spectra.PretreatSNV},
		Iterations:    4,
		TuneLength:    3,
		Seed:          777,
		Strategy:      PLS{},
	}

	serial := base
	serial.Workers = 1
	parallel := base
	parallel.Workers = 8

	a, err := Run(context.Background(), tbl, serial)
	if err != nil {
		t.Fatalf("Run serial: %v", err)
	}
	b, err := Run(context.Background(), tbl, parallel)
	if err != nil {
		t.Fatalf("Run parallel: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Pretreatment != b[i].Pretreatment || a[i].Iteration != b[i].Iteration {
			t.Fatalf("result %d ordering differs", i)
		}
		if a[i].Metrics != b[i].Metrics {
			t.Errorf("result %d metrics differ between worker counts: %+v vs %+v", i, a[i].Metrics, b[i].Metrics)
		}
		if a[i].Hyperparams["ncomp"] != b[i].Hyperparams["ncomp"] {
			t.Errorf("result %d chose different hyperparameters", i)
		}
	}
}

func TestRunRecordsUnusablePretreatmentAsFailures(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	// 8 wavelengths: the gap-11 derivative cannot apply.
	tbl := signalTable(t, rng, 30, 8)

	cfg := LoopConfig{
		Pretreatments: []spectra.Pretreatment{spectra.PretreatRaw, spectra.PretreatGapDer},
		Iterations:    2,
		TuneLength:    2,
		Seed:          5,
		Strategy:      PLS{},
	}
	results, err := Run(context.Background(), tbl, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4 (failures included)", len(results))
	}
	for _, r := range results {
		switch r.Pretreatment {
		case spectra.PretreatRaw:
			if r.Failed() {
				t.Errorf("raw trial %d failed: %s", r.Iteration, r.Err)
			}
		case spectra.PretreatGapDer:
			if !r.Failed() {
				t.Errorf("gap-derivative trial %d should have failed on an 8-point grid", r.Iteration)
			}
		}
	}
}

func TestRunCancellationKeepsPartialResults(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	tbl := signalTable(t, rng, 40, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before any trial is fed

	cfg := LoopConfig{
		Pretreatments: []spectra.Pretreatment{spectra.PretreatRaw},
		Iterations:    5,
		TuneLength:    3,
		Seed:          1,
		Workers:       2,
		Strategy:      PLS{},
	}
	results, err := Run(ctx, tbl, cfg)
	if err == nil {
		t.Fatal("expected context error from cancelled run")
	}
	// Whatever completed must still be well formed.
	for _, r := range results {
		if r.Pretreatment != spectra.PretreatRaw {
			t.Errorf("unexpected pretreatment %s in partial results", r.Pretreatment)
		}
	}
	if len(results) > 5 {
		t.Errorf("partial results = %d, more than the job count", len(results))
	}
}

func TestRunTrialTimeoutRecordedAsFailure(t *testing.T) {
	rng := rand.New(rand.NewSource(47))
	tbl := signalTable(t, rng, 40, 30)

	cfg := LoopConfig{
		Pretreatments: []spectra.Pretreatment{spectra.PretreatRaw},
		Iterations:    3,
		TuneLength:    5,
		Seed:          9,
		Workers:       2,
		TrialTimeout:  time.Nanosecond,
		Strategy:      PLS{},
	}
	results, err := Run(context.Background(), tbl, cfg)
	if err != nil {
		t.Fatalf("Run: %v (expired trials must not fail the batch)", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, r := range results {
		if !r.Failed() {
			t.Errorf("trial %d completed under a 1ns timeout", r.Iteration)
			continue
		}
		if !strings.Contains(r.Err, context.DeadlineExceeded.Error()) {
			t.Errorf("trial %d error %q does not mention the deadline", r.Iteration, r.Err)
		}
	}
}

func TestRunRejectsUnlabeledTable(t *testing.T) {
	ids := []string{"a", "b"}
	x := [][]float64{{1, 2}, {3, 4}}
	tbl, err := spectra.NewTable(ids, nil, nil, nil, []int{100, 101}, x)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	cfg := LoopConfig{Iterations: 1, TuneLength: 1, Strategy: PLS{}}
	if _, err := Run(context.Background(), tbl, cfg); err == nil {
		t.Error("expected error for unlabeled table")
	}
}
