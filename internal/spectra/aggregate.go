package spectra

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// AggregateFunc selects the elementwise reduction used when collapsing
// repeated scans of one sample into a single row.
type AggregateFunc string

const (
	AggregateMean   AggregateFunc = "mean"
	AggregateMedian AggregateFunc = "median"
)

// Aggregate collapses rows sharing the same tuple of groupKeys values
// into one row per tuple. Spectral columns and the reference column are
// reduced elementwise by fn; the synthesized unique id is the key
// values joined with "_". Metadata columns that are constant within
// every group are carried through; columns that vary within any group
// are dropped (logged by the caller if it cares, reported here via the
// returned dropped list).
//
// The output row count equals the number of distinct key tuples, in
// first-appearance order.
func Aggregate(t *Table, groupKeys []string, fn AggregateFunc) (*Table, []string, error) {
	if len(groupKeys) == 0 {
		return nil, nil, fmt.Errorf("aggregate: no grouping keys")
	}
	if fn != AggregateMean && fn != AggregateMedian {
		return nil, nil, fmt.Errorf("aggregate: unknown function %q", fn)
	}
	keyCols := make([][]string, len(groupKeys))
	for i, name := range groupKeys {
		col, err := t.MetaColumn(name)
		if err != nil {
			return nil, nil, fmt.Errorf("aggregate: %w", err)
		}
		keyCols[i] = col
	}

	// Group rows by key tuple, preserving first-appearance order.
	groupOf := make(map[string][]int)
	var order []string
	for r := 0; r < t.NumSamples(); r++ {
		parts := make([]string, len(keyCols))
		for i, col := range keyCols {
			parts[i] = col[r]
		}
		key := strings.Join(parts, "_")
		if _, seen := groupOf[key]; !seen {
			order = append(order, key)
		}
		groupOf[key] = append(groupOf[key], r)
	}

	// Decide which non-key metadata columns survive: those constant
	// within every group.
	var keptMeta, droppedMeta []string
	for _, name := range t.MetaNames {
		if containsString(groupKeys, name) {
			keptMeta = append(keptMeta, name)
			continue
		}
		col := t.Meta[name]
		constant := true
		for _, rows := range groupOf {
			for _, r := range rows[1:] {
				if col[r] != col[rows[0]] {
					constant = false
					break
				}
			}
			if !constant {
				break
			}
		}
		if constant {
			keptMeta = append(keptMeta, name)
		} else {
			droppedMeta = append(droppedMeta, name)
		}
	}

	nw := t.NumWavelengths()
	ids := make([]string, 0, len(order))
	var refs []float64
	if t.HasRef {
		refs = make([]float64, 0, len(order))
	}
	x := make([][]float64, 0, len(order))
	meta := make(map[string][]string, len(keptMeta))
	for _, name := range keptMeta {
		meta[name] = make([]string, 0, len(order))
	}

	buf := make([]float64, 0, 16)
	for _, key := range order {
		rows := groupOf[key]
		spectrum := make([]float64, nw)
		for c := 0; c < nw; c++ {
			buf = buf[:0]
			for _, r := range rows {
				buf = append(buf, t.X[r][c])
			}
			spectrum[c] = reduce(buf, fn)
		}
		ids = append(ids, key)
		if t.HasRef {
			buf = buf[:0]
			for _, r := range rows {
				buf = append(buf, t.Refs[r])
			}
			refs = append(refs, reduce(buf, fn))
		}
		x = append(x, spectrum)
		for _, name := range keptMeta {
			meta[name] = append(meta[name], t.Meta[name][rows[0]])
		}
	}

	out, err := NewTable(ids, refs, keptMeta, meta, t.Wavelengths, x)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: %w", err)
	}
	return out, droppedMeta, nil
}

// reduce applies fn to vals. Median sorts a copy held in vals itself:
// callers pass a scratch buffer they do not keep.
func reduce(vals []float64, fn AggregateFunc) float64 {
	if fn == AggregateMean {
		return stat.Mean(vals, nil)
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.LinInterp, vals, nil)
}
