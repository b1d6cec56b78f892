package spectra

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
)

// CSVOptions declares which columns of a delimited input file play
// which role. Columns not named and not parseable as wavelengths are
// rejected rather than guessed at.
type CSVOptions struct {
	// IDColumn names the unique-identifier column. Required.
	IDColumn string

	// ReferenceColumn names the reference trait column. Empty means the
	// table is unlabeled (prediction input).
	ReferenceColumn string

	// OptionalReference reads the table as unlabeled when
	// ReferenceColumn is absent from the header instead of failing.
	// Prediction input commonly omits the reference column entirely.
	OptionalReference bool

	// MetaColumns names grouping/metadata columns, in any order.
	MetaColumns []string

	// WavelengthPrefix is the token prefixing wavelength headers,
	// e.g. "X" for headers like X1350. The remainder must parse as a
	// number; fractional wavelengths are rounded to the integer grid.
	WavelengthPrefix string
}

// ReadCSV parses a spectral table from r. Rows containing any missing
// cell across the declared metadata, reference and spectral span are
// excluded before the table is constructed; the count of dropped rows
// is logged. Header problems surface as ErrMalformedInput.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	if opts.IDColumn == "" {
		return nil, schemaErr("unique_id", -1, "no identifier column declared")
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idIdx := -1
	refIdx := -1
	metaIdx := make(map[string]int, len(opts.MetaColumns))
	var specCols []specCol

	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == opts.IDColumn:
			idIdx = i
		case opts.ReferenceColumn != "" && name == opts.ReferenceColumn:
			refIdx = i
		case containsString(opts.MetaColumns, name):
			metaIdx[name] = i
		default:
			if opts.WavelengthPrefix != "" && !strings.HasPrefix(name, opts.WavelengthPrefix) {
				// Undeclared non-spectral column: ignore it entirely.
				continue
			}
			raw := strings.TrimPrefix(name, opts.WavelengthPrefix)
			wl, perr := strconv.ParseFloat(raw, 64)
			if perr != nil {
				if opts.WavelengthPrefix == "" {
					continue
				}
				return nil, schemaErr(name, -1, "wavelength header not parseable: %v", perr)
			}
			specCols = append(specCols, specCol{col: i, wavelength: int(math.Round(wl))})
		}
	}

	if idIdx < 0 {
		return nil, schemaErr(opts.IDColumn, -1, "identifier column not found in header")
	}
	if opts.ReferenceColumn != "" && refIdx < 0 && !opts.OptionalReference {
		return nil, schemaErr(opts.ReferenceColumn, -1, "reference column not found in header")
	}
	for _, name := range opts.MetaColumns {
		if _, ok := metaIdx[name]; !ok {
			return nil, schemaErr(name, -1, "metadata column not found in header")
		}
	}
	if len(specCols) == 0 {
		return nil, schemaErr("spectra", -1, "no spectral columns found (prefix %q)", opts.WavelengthPrefix)
	}
	for i := 1; i < len(specCols); i++ {
		prev, cur := specCols[i-1], specCols[i]
		if cur.wavelength == prev.wavelength {
			return nil, schemaErr(header[cur.col], -1, "collides with %s at grid point %d",
				strings.TrimSpace(header[prev.col]), cur.wavelength)
		}
		if cur.wavelength < prev.wavelength {
			return nil, schemaErr(header[cur.col], -1, "wavelength headers not strictly increasing")
		}
	}

	var (
		ids     []string
		refs    []float64
		x       [][]float64
		meta    = make(map[string][]string, len(opts.MetaColumns))
		dropped int
		rowNum  int
	)
	for _, name := range opts.MetaColumns {
		meta[name] = nil
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", rowNum+1, err)
		}
		rowNum++

		if missingCell(rec, idIdx, refIdx, metaIdx, specCols) {
			dropped++
			continue
		}

		spectrum := make([]float64, len(specCols))
		bad := false
		for j, sc := range specCols {
			v, perr := strconv.ParseFloat(strings.TrimSpace(rec[sc.col]), 64)
			if perr != nil {
				bad = true
				break
			}
			spectrum[j] = v
		}
		if bad {
			dropped++
			continue
		}
		if refIdx >= 0 {
			v, perr := strconv.ParseFloat(strings.TrimSpace(rec[refIdx]), 64)
			if perr != nil {
				dropped++
				continue
			}
			refs = append(refs, v)
		}

		ids = append(ids, strings.TrimSpace(rec[idIdx]))
		x = append(x, spectrum)
		for name, idx := range metaIdx {
			meta[name] = append(meta[name], strings.TrimSpace(rec[idx]))
		}
	}

	if dropped > 0 {
		log.Printf("ReadCSV: dropped %d of %d rows with missing or unparseable cells", dropped, rowNum)
	}
	if len(ids) == 0 {
		return nil, schemaErr("spectra", -1, "all %d rows dropped", rowNum)
	}

	wavelengths := make([]int, len(specCols))
	for i, sc := range specCols {
		wavelengths[i] = sc.wavelength
	}
	if refIdx < 0 {
		refs = nil
	}
	return NewTable(ids, refs, opts.MetaColumns, meta, wavelengths, x)
}

// specCol binds a spectral column index in the input file to the
// wavelength its header encodes.
type specCol struct {
	col        int
	wavelength int
}

func missingCell(rec []string, idIdx, refIdx int, metaIdx map[string]int, specCols []specCol) bool {
	blank := func(i int) bool {
		if i >= len(rec) {
			return true
		}
		s := strings.TrimSpace(rec[i])
		return s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan")
	}
	if blank(idIdx) {
		return true
	}
	if refIdx >= 0 && blank(refIdx) {
		return true
	}
	for _, i := range metaIdx {
		if blank(i) {
			return true
		}
	}
	for _, sc := range specCols {
		if blank(sc.col) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PredictionRow is one line of the predictions output table.
type PredictionRow struct {
	UniqueID     string
	Iteration    int
	Pretreatment int
	Observed     *float64 // nil for unlabeled input
	Predicted    float64
}

// WritePredictionsCSV writes the predictions table in the standard
// column order {unique_id, iteration, pretreatment_id, observed, predicted}.
func WritePredictionsCSV(w io.Writer, rows []PredictionRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"unique_id", "iteration", "pretreatment_id", "observed", "predicted"}); err != nil {
		return fmt.Errorf("write predictions header: %w", err)
	}
	for _, r := range rows {
		obs := ""
		if r.Observed != nil {
			obs = strconv.FormatFloat(*r.Observed, 'g', -1, 64)
		}
		rec := []string{
			r.UniqueID,
			strconv.Itoa(r.Iteration),
			strconv.Itoa(r.Pretreatment),
			obs,
			strconv.FormatFloat(r.Predicted, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write prediction row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
