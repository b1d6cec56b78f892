package spectra

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes the pipeline distinguishes.
// Callers test with errors.Is; messages carry the offending column or
// sample where one can be identified.
var (
	// ErrMalformedInput marks schema problems in input tables: missing
	// required columns, unparseable wavelength headers, duplicate IDs.
	ErrMalformedInput = errors.New("malformed input")

	// ErrDegenerateCovariance marks a covariance matrix that stayed
	// singular even after window averaging and ridge regularisation.
	ErrDegenerateCovariance = errors.New("degenerate covariance")

	// ErrIncompatibleGrid marks prediction-time spectra whose wavelength
	// grid does not match the grid a model was trained on.
	ErrIncompatibleGrid = errors.New("incompatible wavelength grid")

	// ErrEmptyPartition marks a fold with zero train or zero test samples.
	ErrEmptyPartition = errors.New("empty partition")
)

// SchemaError describes a malformed-input condition with the column
// (and optionally the row) that triggered it.
type SchemaError struct {
	Column string
	Row    int // -1 when the problem is not row-specific
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("malformed input: column %q row %d: %s", e.Column, e.Row, e.Reason)
	}
	return fmt.Sprintf("malformed input: column %q: %s", e.Column, e.Reason)
}

// Unwrap makes errors.Is(err, ErrMalformedInput) work for SchemaError.
func (e *SchemaError) Unwrap() error { return ErrMalformedInput }

func schemaErr(column string, row int, format string, args ...interface{}) error {
	return &SchemaError{Column: column, Row: row, Reason: fmt.Sprintf(format, args...)}
}
