package spectra

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Table is the shared tabular model for spectral data: a block of
// metadata columns followed by a block of spectral columns, one row per
// sample (one scan, or one aggregated scan). All rows share the same
// wavelength grid. Tables are immutable once constructed; every
// transform returns a new Table.
type Table struct {
	// IDs holds the unique identifier for each row.
	IDs []string

	// Refs holds the reference trait value for each row. Nil for
	// unlabeled prediction tables; HasRef reports which case applies.
	Refs   []float64
	HasRef bool

	// MetaNames lists the grouping/metadata columns in input order;
	// Meta maps each name to its per-row values.
	MetaNames []string
	Meta      map[string][]string

	// Wavelengths is the spectral grid, strictly increasing.
	// X holds intensities, one row per sample, len(Wavelengths) columns.
	Wavelengths []int
	X           [][]float64
}

// NewTable validates the column blocks and assembles a Table. It is the
// single schema checkpoint: transforms downstream assume a table that
// passed here is well formed.
func NewTable(ids []string, refs []float64, metaNames []string, meta map[string][]string, wavelengths []int, x [][]float64) (*Table, error) {
	n := len(ids)
	if n == 0 {
		return nil, schemaErr("unique_id", -1, "table has no rows")
	}
	if refs != nil && len(refs) != n {
		return nil, schemaErr("reference", -1, "have %d values for %d rows", len(refs), n)
	}
	if len(x) != n {
		return nil, schemaErr("spectra", -1, "have %d spectra for %d rows", len(x), n)
	}
	if len(wavelengths) == 0 {
		return nil, schemaErr("spectra", -1, "no spectral columns")
	}
	for i := 1; i < len(wavelengths); i++ {
		if wavelengths[i] <= wavelengths[i-1] {
			return nil, schemaErr("spectra", -1, "wavelength grid not strictly increasing at index %d", i)
		}
	}
	seen := make(map[string]int, n)
	for i, id := range ids {
		if id == "" {
			return nil, schemaErr("unique_id", i, "empty identifier")
		}
		if prev, dup := seen[id]; dup {
			return nil, schemaErr("unique_id", i, "duplicate identifier %q (first at row %d)", id, prev)
		}
		seen[id] = i
		if len(x[i]) != len(wavelengths) {
			return nil, schemaErr("spectra", i, "spectrum has %d points, grid has %d", len(x[i]), len(wavelengths))
		}
	}
	for _, name := range metaNames {
		col, ok := meta[name]
		if !ok {
			return nil, schemaErr(name, -1, "declared metadata column missing")
		}
		if len(col) != n {
			return nil, schemaErr(name, -1, "have %d values for %d rows", len(col), n)
		}
	}
	return &Table{
		IDs:         ids,
		Refs:        refs,
		HasRef:      refs != nil,
		MetaNames:   metaNames,
		Meta:        meta,
		Wavelengths: wavelengths,
		X:           x,
	}, nil
}

// NumSamples returns the row count.
func (t *Table) NumSamples() int { return len(t.IDs) }

// NumWavelengths returns the spectral column count.
func (t *Table) NumWavelengths() int { return len(t.Wavelengths) }

// Matrix packs the spectral block into a dense matrix, one row per
// sample. The matrix is a copy; mutating it does not touch the table.
func (t *Table) Matrix() *mat.Dense {
	m := mat.NewDense(t.NumSamples(), t.NumWavelengths(), nil)
	for i, row := range t.X {
		m.SetRow(i, row)
	}
	return m
}

// MetaColumn returns the named metadata column, or an error naming it.
func (t *Table) MetaColumn(name string) ([]string, error) {
	col, ok := t.Meta[name]
	if !ok {
		return nil, schemaErr(name, -1, "no such metadata column")
	}
	return col, nil
}

// Subset returns a new Table containing the given rows, in the given
// order. Indices out of range are an error, not a panic.
func (t *Table) Subset(rows []int) (*Table, error) {
	ids := make([]string, len(rows))
	var refs []float64
	if t.HasRef {
		refs = make([]float64, len(rows))
	}
	x := make([][]float64, len(rows))
	meta := make(map[string][]string, len(t.MetaNames))
	for _, name := range t.MetaNames {
		meta[name] = make([]string, len(rows))
	}
	for j, r := range rows {
		if r < 0 || r >= t.NumSamples() {
			return nil, fmt.Errorf("subset: row %d out of range [0,%d)", r, t.NumSamples())
		}
		ids[j] = t.IDs[r]
		if t.HasRef {
			refs[j] = t.Refs[r]
		}
		x[j] = t.X[r]
		for _, name := range t.MetaNames {
			meta[name][j] = t.Meta[name][r]
		}
	}
	return &Table{
		IDs:         ids,
		Refs:        refs,
		HasRef:      t.HasRef,
		MetaNames:   t.MetaNames,
		Meta:        meta,
		Wavelengths: t.Wavelengths,
		X:           x,
	}, nil
}

// SameGrid reports whether two tables share an identical wavelength grid.
func (t *Table) SameGrid(other *Table) bool {
	if len(t.Wavelengths) != len(other.Wavelengths) {
		return false
	}
	for i, w := range t.Wavelengths {
		if other.Wavelengths[i] != w {
			return false
		}
	}
	return true
}

// withSpectra returns a copy of the table carrying new spectra on a new
// grid, preserving IDs, references and metadata. Used by pretreatments.
func (t *Table) withSpectra(wavelengths []int, x [][]float64) *Table {
	return &Table{
		IDs:         t.IDs,
		Refs:        t.Refs,
		HasRef:      t.HasRef,
		MetaNames:   t.MetaNames,
		Meta:        t.Meta,
		Wavelengths: wavelengths,
		X:           x,
	}
}
