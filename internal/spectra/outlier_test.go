package spectra

import (
	"math"
	"math/rand"
	"strconv"
	"testing"
)

// noiseTable builds n spectra of p points around a smooth base curve
// with gaussian noise of the given sigma.
func noiseTable(t *testing.T, rng *rand.Rand, n, p int, sigma float64) *Table {
	t.Helper()
	ids := make([]string, n)
	x := make([][]float64, n)
	for i := 0; i < n; i++ {
		ids[i] = "s" + strconv.Itoa(i)
		row := make([]float64, p)
		for j := range row {
			base := 0.5 + 0.3*math.Sin(float64(j)*0.15)
			row[j] = base + rng.NormFloat64()*sigma
		}
		x[i] = row
	}
	tbl, err := NewTable(ids, nil, nil, nil, wavegrid(p), x)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestDetectOutliersFlagsShiftedSample(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sigma := 0.01
	tbl := noiseTable(t, rng, 60, 100, sigma)

	// Shift one sample far outside the cloud: +50 sigma everywhere.
	shifted := make([]float64, len(tbl.X[7]))
	for j, v := range tbl.X[7] {
		shifted[j] = v + 50*sigma
	}
	tbl.X[7] = shifted

	rep, err := DetectOutliers(tbl, 10, 0.05)
	if err != nil {
		t.Fatalf("DetectOutliers: %v", err)
	}
	if !rep.Flags[7] {
		t.Errorf("shifted sample not flagged (distance %g, threshold %g)", rep.Distances[7], rep.Threshold)
	}
	if rep.DF != 10 {
		t.Errorf("DF = %d, want 10 windowed columns", rep.DF)
	}
	if len(rep.Distances) != tbl.NumSamples() {
		t.Errorf("distances for %d rows, want %d", len(rep.Distances), tbl.NumSamples())
	}

	filtered, err := RemoveOutliers(tbl, rep)
	if err != nil {
		t.Fatalf("RemoveOutliers: %v", err)
	}
	if filtered.NumSamples() != tbl.NumSamples()-rep.NumFlagged() {
		t.Errorf("filtered rows = %d, want %d", filtered.NumSamples(), tbl.NumSamples()-rep.NumFlagged())
	}
	for _, id := range filtered.IDs {
		if id == tbl.IDs[7] {
			t.Errorf("flagged sample %q survived filtering", id)
		}
	}
}

func TestDetectOutliersCleanNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tbl := noiseTable(t, rng, 80, 100, 0.01)

	rep, err := DetectOutliers(tbl, 10, 0.05)
	if err != nil {
		t.Fatalf("DetectOutliers: %v", err)
	}
	// With uniform noise and alpha=0.05 the expected flag count is ~4;
	// allow generous headroom but catch systematic over-flagging.
	if rep.NumFlagged() > tbl.NumSamples()/4 {
		t.Errorf("flagged %d of %d clean samples", rep.NumFlagged(), tbl.NumSamples())
	}
}

func TestDetectOutliersDegenerateCovariance(t *testing.T) {
	// All spectra identical: zero covariance in every direction.
	row := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	x := [][]float64{}
	ids := []string{}
	for i := 0; i < 6; i++ {
		x = append(x, row)
		ids = append(ids, "s"+strconv.Itoa(i))
	}
	tbl, err := NewTable(ids, nil, nil, nil, wavegrid(len(row)), x)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	// Zero variance still factorises once ridged, so distances are all
	// zero; either a degenerate-covariance error or zero flags is
	// acceptable, silence plus NaNs is not.
	rep, err := DetectOutliers(tbl, 2, 0.05)
	if err != nil {
		return
	}
	for i, d := range rep.Distances {
		if math.IsNaN(d) {
			t.Errorf("distance %d is NaN", i)
		}
	}
	if rep.NumFlagged() != 0 {
		t.Errorf("flagged %d identical samples", rep.NumFlagged())
	}
}

func TestDetectOutliersBadArgs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tbl := noiseTable(t, rng, 10, 20, 0.01)
	if _, err := DetectOutliers(tbl, 0, 0.05); err == nil {
		t.Error("expected error for window size 0")
	}
	if _, err := DetectOutliers(tbl, 5, 1.5); err == nil {
		t.Error("expected error for alpha outside (0,1)")
	}
}

func TestRemoveOutliersMismatchedReport(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tbl := noiseTable(t, rng, 10, 20, 0.01)
	rep := &OutlierReport{Flags: make([]bool, 3)}
	if _, err := RemoveOutliers(tbl, rep); err == nil {
		t.Error("expected error for report/table row mismatch")
	}
}
