package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harvest-data/spectra.report/internal/model"
	"github.com/harvest-data/spectra.report/internal/spectra"
)

func TestWriteSummaryChart(t *testing.T) {
	sums := []model.PretreatmentSummary{
		{Pretreatment: spectra.PretreatRaw, Trials: 10, RMSEMean: 1.2, RSquaredMean: 0.85},
		{Pretreatment: spectra.PretreatSNV, Trials: 10, Failures: 2, RMSEMean: 0.9, RSquaredMean: 0.91},
	}
	var buf bytes.Buffer
	if err := WriteSummaryChart(&buf, "dry matter run", sums); err != nil {
		t.Fatalf("WriteSummaryChart: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "dry matter run") {
		t.Error("chart missing title")
	}
	if !strings.Contains(html, "snv (2/10 failed)") {
		t.Error("chart missing failure annotation")
	}
}

func TestWriteSummaryChartEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaryChart(&buf, "x", nil); err == nil {
		t.Error("expected error for empty summaries")
	}
}

func TestSavePlots(t *testing.T) {
	ids := []string{"a", "b", "c"}
	x := [][]float64{
		{0.1, 0.2, 0.3, 0.4},
		{0.2, 0.3, 0.4, 0.5},
		{0.15, 0.25, 0.35, 0.45},
	}
	tbl, err := spectra.NewTable(ids, nil, nil, nil, []int{1350, 1352, 1354, 1356}, x)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	dir := t.TempDir()
	spectraPath := filepath.Join(dir, "spectra.png")
	if err := SaveSpectraPlot(tbl, "raw spectra", spectraPath); err != nil {
		t.Fatalf("SaveSpectraPlot: %v", err)
	}
	if fi, err := os.Stat(spectraPath); err != nil || fi.Size() == 0 {
		t.Errorf("spectra png not written: %v", err)
	}

	rep := &spectra.OutlierReport{
		Distances: []float64{1.0, 2.0, 50.0},
		Flags:     []bool{false, false, true},
		Threshold: 9.49,
		DF:        4,
		Alpha:     0.05,
	}
	distPath := filepath.Join(dir, "distances.png")
	if err := SaveDistancePlot(rep, "outlier distances", distPath); err != nil {
		t.Fatalf("SaveDistancePlot: %v", err)
	}
	if fi, err := os.Stat(distPath); err != nil || fi.Size() == 0 {
		t.Errorf("distance png not written: %v", err)
	}
}
