// Command predict applies a saved model artifact to a new spectral CSV
// and writes predictions.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harvest-data/spectra.report/internal/model"
	"github.com/harvest-data/spectra.report/internal/spectra"
	"github.com/harvest-data/spectra.report/internal/version"
)

var (
	modelPath   = flag.String("model", "", "Model artifact written by train (required)")
	inputPath   = flag.String("input", "", "Spectral CSV to predict on (required)")
	outputPath  = flag.String("output", "", "Predictions CSV path (default stdout)")
	idColumn    = flag.String("id-column", "unique.id", "Sample identifier column")
	refColumn   = flag.String("reference-column", "reference", "Reference column, included as observed when present")
	wlPrefix    = flag.String("wavelength-prefix", "X", "Prefix marking spectral columns")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("spectra.report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *modelPath == "" || *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(); err != nil {
		log.Fatalf("predict: %v", err)
	}
}

func run() error {
	mf, err := os.Open(*modelPath)
	if err != nil {
		return err
	}
	artifact, err := model.LoadArtifact(mf)
	mf.Close()
	if err != nil {
		return err
	}
	log.Printf("Loaded %s model (pretreatment %s, %d wavelengths)",
		artifact.StrategyName, artifact.Pretreatment, len(artifact.Wavelengths))

	f, err := os.Open(*inputPath)
	if err != nil {
		return err
	}
	tbl, err := spectra.ReadCSV(f, spectra.CSVOptions{
		IDColumn:          *idColumn,
		ReferenceColumn:   *refColumn,
		OptionalReference: true,
		WavelengthPrefix:  *wlPrefix,
	})
	f.Close()
	if err != nil {
		return err
	}

	predicted, err := artifact.Predict(tbl)
	if err != nil {
		return err
	}

	rows := make([]spectra.PredictionRow, len(predicted))
	for i, p := range predicted {
		rows[i] = spectra.PredictionRow{
			UniqueID:     tbl.IDs[i],
			Pretreatment: int(artifact.Pretreatment),
			Predicted:    p,
		}
		if tbl.HasRef {
			obs := tbl.Refs[i]
			rows[i].Observed = &obs
		}
	}

	out := os.Stdout
	if *outputPath != "" {
		out, err = os.Create(*outputPath)
		if err != nil {
			return err
		}
		defer out.Close()
	}
	if err := spectra.WritePredictionsCSV(out, rows); err != nil {
		return err
	}
	log.Printf("Wrote %d predictions", len(rows))
	return nil
}
