package spectra

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const sampleCSV = `sample_id,study,DMC,X1350,X1352,X1354
plotA,trial1,21.3,0.41,0.42,0.40
plotB,trial1,19.8,0.39,0.40,0.38
plotC,trial2,,0.44,0.45,0.43
plotD,trial2,22.1,0.45,,0.44
plotE,trial2,20.5,0.42,0.43,0.41
`

func TestReadCSVDropsIncompleteRows(t *testing.T) {
	opts := CSVOptions{
		IDColumn:         "sample_id",
		ReferenceColumn:  "DMC",
		MetaColumns:      []string{"study"},
		WavelengthPrefix: "X",
	}
	tbl, err := ReadCSV(strings.NewReader(sampleCSV), opts)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	// plotC misses its reference, plotD a spectral cell.
	if tbl.NumSamples() != 3 {
		t.Fatalf("rows = %d, want 3", tbl.NumSamples())
	}
	if tbl.IDs[0] != "plotA" || tbl.IDs[2] != "plotE" {
		t.Errorf("ids = %v", tbl.IDs)
	}
	want := []int{1350, 1352, 1354}
	for i, w := range want {
		if tbl.Wavelengths[i] != w {
			t.Errorf("wavelength[%d] = %d, want %d", i, tbl.Wavelengths[i], w)
		}
	}
	if !tbl.HasRef {
		t.Fatal("labeled table lost its reference column")
	}
	if tbl.Refs[1] != 19.8 {
		t.Errorf("ref[1] = %v, want 19.8", tbl.Refs[1])
	}
	study, err := tbl.MetaColumn("study")
	if err != nil {
		t.Fatalf("MetaColumn: %v", err)
	}
	if study[2] != "trial2" {
		t.Errorf("study[2] = %q, want trial2", study[2])
	}
}

func TestReadCSVUnlabeled(t *testing.T) {
	opts := CSVOptions{
		IDColumn:         "sample_id",
		WavelengthPrefix: "X",
	}
	tbl, err := ReadCSV(strings.NewReader(sampleCSV), opts)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if tbl.HasRef {
		t.Error("unlabeled read should not carry references")
	}
	// Only plotD has a missing spectral cell now that DMC is ignored.
	if tbl.NumSamples() != 4 {
		t.Errorf("rows = %d, want 4", tbl.NumSamples())
	}
}

func TestReadCSVOptionalReference(t *testing.T) {
	// Prediction input: no reference column in the header at all.
	csv := "sample_id,X1350,X1352,X1354\nplotA,0.41,0.42,0.40\nplotB,0.39,0.40,0.38\n"
	opts := CSVOptions{
		IDColumn:          "sample_id",
		ReferenceColumn:   "reference",
		OptionalReference: true,
		WavelengthPrefix:  "X",
	}
	tbl, err := ReadCSV(strings.NewReader(csv), opts)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if tbl.HasRef {
		t.Error("absent optional reference should read as unlabeled")
	}
	if tbl.NumSamples() != 2 {
		t.Errorf("rows = %d, want 2", tbl.NumSamples())
	}

	// When the column is present it is still picked up.
	tbl, err = ReadCSV(strings.NewReader(sampleCSV), CSVOptions{
		IDColumn:          "sample_id",
		ReferenceColumn:   "DMC",
		OptionalReference: true,
		WavelengthPrefix:  "X",
	})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if !tbl.HasRef {
		t.Error("present reference column was ignored")
	}

	// Without the option an absent reference column stays fatal.
	opts.OptionalReference = false
	if _, err := ReadCSV(strings.NewReader(csv), opts); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("err = %v, want ErrMalformedInput", err)
	}
}

func TestReadCSVMissingColumns(t *testing.T) {
	opts := CSVOptions{
		IDColumn:         "nope",
		WavelengthPrefix: "X",
	}
	_, err := ReadCSV(strings.NewReader(sampleCSV), opts)
	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("missing id column: err = %v, want ErrMalformedInput", err)
	}

	opts = CSVOptions{
		IDColumn:         "sample_id",
		ReferenceColumn:  "yield",
		WavelengthPrefix: "X",
	}
	_, err = ReadCSV(strings.NewReader(sampleCSV), opts)
	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("missing reference column: err = %v, want ErrMalformedInput", err)
	}
}

func TestReadCSVBadWavelengthHeader(t *testing.T) {
	csv := "sample_id,Xoops,X1352\nplotA,0.1,0.2\n"
	opts := CSVOptions{IDColumn: "sample_id", WavelengthPrefix: "X"}
	_, err := ReadCSV(strings.NewReader(csv), opts)
	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("err = %v, want ErrMalformedInput", err)
	}
}

func TestReadCSVFractionalWavelengths(t *testing.T) {
	// Fractional headers round to the nearest grid point.
	csv := "sample_id,X1350.2,X1350.8,X1352.1\nplotA,0.1,0.2,0.3\n"
	opts := CSVOptions{IDColumn: "sample_id", WavelengthPrefix: "X"}
	tbl, err := ReadCSV(strings.NewReader(csv), opts)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	want := []int{1350, 1351, 1352}
	for i, w := range want {
		if tbl.Wavelengths[i] != w {
			t.Errorf("wavelength[%d] = %d, want %d", i, tbl.Wavelengths[i], w)
		}
	}

	// Headers landing on the same grid point name the collision.
	csv = "sample_id,X1350.2,X1350.4\nplotA,0.1,0.2\n"
	_, err = ReadCSV(strings.NewReader(csv), opts)
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("err = %v, want ErrMalformedInput", err)
	}
	if !strings.Contains(err.Error(), "collides with X1350.2") {
		t.Errorf("err = %v, want collision naming X1350.2", err)
	}
}

func TestWritePredictionsCSV(t *testing.T) {
	obs := 20.5
	rows := []PredictionRow{
		{UniqueID: "plotA", Iteration: 1, Pretreatment: 2, Observed: &obs, Predicted: 20.1},
		{UniqueID: "plotB", Iteration: 1, Pretreatment: 2, Predicted: 18.9},
	}
	var buf bytes.Buffer
	if err := WritePredictionsCSV(&buf, rows); err != nil {
		t.Fatalf("WritePredictionsCSV: %v", err)
	}
	got := buf.String()
	wantLines := []string{
		"unique_id,iteration,pretreatment_id,observed,predicted",
		"plotA,1,2,20.5,20.1",
		"plotB,1,2,,18.9",
	}
	for _, line := range wantLines {
		if !strings.Contains(got, line) {
			t.Errorf("output missing line %q:\n%s", line, got)
		}
	}
}
