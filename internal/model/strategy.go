package model

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Fitted is a trained model handle. Implementations must be safe for
// concurrent Predict calls and gob-encodable so artifacts round-trip.
type Fitted interface {
	Predict(x *mat.Dense) ([]float64, error)
}

// Strategy is the pluggable fit/predict capability the train/eval loop
// drives. The loop never inspects a strategy's internals: it asks for a
// candidate grid, fits each candidate, and compares predictions.
type Strategy interface {
	// Name is the registry key, e.g. "pls".
	Name() string

	// Grid returns up to tuneLength candidate hyperparameter
	// configurations, ordered so earlier entries win metric ties.
	Grid(tuneLength int) []Hyperparams

	// Fit trains on x (rows are samples) against y.
	Fit(x *mat.Dense, y []float64, hp Hyperparams) (Fitted, error)
}

var strategies = map[string]Strategy{}

// RegisterStrategy adds a strategy to the registry. Later registrations
// under the same name replace earlier ones.
func RegisterStrategy(s Strategy) {
	strategies[s.Name()] = s
}

// LookupStrategy returns the named strategy or an error listing what is
// available.
func LookupStrategy(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		names := make([]string, 0, len(strategies))
		for n := range strategies {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown model strategy %q (registered: %v)", name, names)
	}
	return s, nil
}
