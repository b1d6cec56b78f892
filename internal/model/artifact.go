package model

import (
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/harvest-data/spectra.report/internal/spectra"
)

// Artifact packages a selected best model for reuse: the pretreatment
// it was trained under, the chosen hyperparameters, the fitted model
// handle and the training summary snapshot. Artifacts are immutable
// once built and round-trip through Save/LoadArtifact without touching
// the original training table.
type Artifact struct {
	Pretreatment spectra.Pretreatment
	StrategyName string
	Hyperparams  Hyperparams

	// Wavelengths is the raw input grid the model was trained from,
	// before pretreatment. Prediction input must match it exactly.
	Wavelengths []int

	Model     Fitted
	Summary   PretreatmentSummary
	CreatedAt time.Time
}

// FitArtifact trains the strategy on the full table under the given
// pretreatment and hyperparameters and wraps the result. This is the
// final refit step after SelectBest.
func FitArtifact(tbl *spectra.Table, p spectra.Pretreatment, s Strategy, hp Hyperparams, summary PretreatmentSummary) (*Artifact, error) {
	if !tbl.HasRef {
		return nil, fmt.Errorf("fit artifact: table has no reference column")
	}
	pretreated, err := spectra.Pretreat(tbl, p)
	if err != nil {
		return nil, fmt.Errorf("fit artifact: %w", err)
	}
	rows := make([]int, pretreated.NumSamples())
	for i := range rows {
		rows[i] = i
	}
	x, y := partitionData(pretreated, rows)
	fitted, err := s.Fit(x, y, hp)
	if err != nil {
		return nil, fmt.Errorf("fit artifact: %w", err)
	}
	return &Artifact{
		Pretreatment: p,
		StrategyName: s.Name(),
		Hyperparams:  hp,
		Wavelengths:  tbl.Wavelengths,
		Model:        fitted,
		Summary:      summary,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Save writes the artifact as a single gob blob. Fitted implementations
// must be gob-registered (the built-in PLS model is).
func (a *Artifact) Save(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(a); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact written by Save.
func LoadArtifact(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := gob.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if a.Model == nil {
		return nil, fmt.Errorf("load artifact: blob carries no fitted model")
	}
	return &a, nil
}

// Predict pretreats newTbl with the artifact's stored recipe and
// delegates to the fitted model. The new table's wavelength grid must
// match the training grid exactly; a mismatch is fatal to the call.
func (a *Artifact) Predict(newTbl *spectra.Table) ([]float64, error) {
	if len(newTbl.Wavelengths) != len(a.Wavelengths) {
		return nil, fmt.Errorf("predict: input has %d wavelengths, model trained on %d: %w",
			len(newTbl.Wavelengths), len(a.Wavelengths), spectra.ErrIncompatibleGrid)
	}
	for i, w := range a.Wavelengths {
		if newTbl.Wavelengths[i] != w {
			return nil, fmt.Errorf("predict: wavelength %d is %d, model trained on %d: %w",
				i, newTbl.Wavelengths[i], w, spectra.ErrIncompatibleGrid)
		}
	}
	pretreated, err := spectra.Pretreat(newTbl, a.Pretreatment)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	x := pretreated.Matrix()
	pred, err := a.Model.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return pred, nil
}
