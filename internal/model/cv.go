package model

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/harvest-data/spectra.report/internal/spectra"
)

// Scheme names a cross-validation partitioning strategy.
type Scheme string

const (
	// SchemeRandom draws an independent random holdout per iteration.
	SchemeRandom Scheme = "random"

	// SchemeStratified bins samples by reference-value quantile and
	// splits proportionally within each bin, keeping the train and test
	// reference distributions comparable.
	SchemeStratified Scheme = "stratified"

	// SchemeGrouped holds out entire groups (e.g. trials or
	// environments) so correlated samples never straddle the split.
	SchemeGrouped Scheme = "grouped"
)

// CVConfig controls fold construction. Exactly one scheme applies per
// run; zero values fall back to a plain random holdout.
type CVConfig struct {
	Scheme         Scheme
	TestProportion float64 // default 0.25
	StratifyBins   int     // default 5; stratified scheme only
	GroupColumn    string  // required for the grouped scheme
}

func (c CVConfig) testProportion() float64 {
	if c.TestProportion <= 0 || c.TestProportion >= 1 {
		return 0.25
	}
	return c.TestProportion
}

func (c CVConfig) stratifyBins() int {
	if c.StratifyBins < 2 {
		return 5
	}
	return c.StratifyBins
}

// Fold is one train/test partition of row indices. Train and test are
// disjoint and together cover every row exactly once.
type Fold struct {
	Train []int
	Test  []int
}

// BuildFold constructs one fold for one iteration using the supplied
// generator. Callers seed the generator per (pretreatment, iteration)
// so parallel and sequential execution agree. A split that leaves
// either partition empty surfaces as ErrEmptyPartition.
func BuildFold(t *spectra.Table, cfg CVConfig, rng *rand.Rand) (Fold, error) {
	switch cfg.Scheme {
	case SchemeRandom, Scheme(""):
		return randomFold(t.NumSamples(), cfg.testProportion(), rng)
	case SchemeStratified:
		return stratifiedFold(t, cfg, rng)
	case SchemeGrouped:
		return groupedFold(t, cfg, rng)
	default:
		return Fold{}, fmt.Errorf("build fold: unknown scheme %q", cfg.Scheme)
	}
}

func randomFold(n int, testProp float64, rng *rand.Rand) (Fold, error) {
	perm := rng.Perm(n)
	nTest := int(float64(n)*testProp + 0.5)
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		return Fold{}, fmt.Errorf("random fold over %d samples: %w", n, spectra.ErrEmptyPartition)
	}
	f := Fold{
		Test:  append([]int(nil), perm[:nTest]...),
		Train: append([]int(nil), perm[nTest:]...),
	}
	sortFold(&f)
	return f, nil
}

func stratifiedFold(t *spectra.Table, cfg CVConfig, rng *rand.Rand) (Fold, error) {
	if !t.HasRef {
		return Fold{}, fmt.Errorf("stratified fold: table has no reference column")
	}
	n := t.NumSamples()
	bins := cfg.stratifyBins()
	if bins > n {
		bins = n
	}

	// Rank rows by reference value; contiguous rank blocks are the
	// quantile bins.
	byRef := make([]int, n)
	for i := range byRef {
		byRef[i] = i
	}
	sort.SliceStable(byRef, func(a, b int) bool { return t.Refs[byRef[a]] < t.Refs[byRef[b]] })

	var f Fold
	testProp := cfg.testProportion()
	for b := 0; b < bins; b++ {
		lo := b * n / bins
		hi := (b + 1) * n / bins
		if lo >= hi {
			continue
		}
		bin := append([]int(nil), byRef[lo:hi]...)
		rng.Shuffle(len(bin), func(i, j int) { bin[i], bin[j] = bin[j], bin[i] })
		nTest := int(float64(len(bin))*testProp + 0.5)
		f.Test = append(f.Test, bin[:nTest]...)
		f.Train = append(f.Train, bin[nTest:]...)
	}
	if len(f.Test) == 0 || len(f.Train) == 0 {
		return Fold{}, fmt.Errorf("stratified fold over %d samples in %d bins: %w", n, bins, spectra.ErrEmptyPartition)
	}
	sortFold(&f)
	return f, nil
}

func groupedFold(t *spectra.Table, cfg CVConfig, rng *rand.Rand) (Fold, error) {
	if cfg.GroupColumn == "" {
		return Fold{}, fmt.Errorf("grouped fold: no group column configured")
	}
	col, err := t.MetaColumn(cfg.GroupColumn)
	if err != nil {
		return Fold{}, fmt.Errorf("grouped fold: %w", err)
	}
	rowsOf := map[string][]int{}
	var groups []string
	for r, g := range col {
		if _, seen := rowsOf[g]; !seen {
			groups = append(groups, g)
		}
		rowsOf[g] = append(rowsOf[g], r)
	}
	if len(groups) < 2 {
		return Fold{}, fmt.Errorf("grouped fold: %d distinct %q groups: %w", len(groups), cfg.GroupColumn, spectra.ErrEmptyPartition)
	}

	rng.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })
	n := t.NumSamples()
	target := int(float64(n)*cfg.testProportion() + 0.5)
	if target < 1 {
		target = 1
	}

	var f Fold
	for _, g := range groups {
		// Hold out whole groups until the test share is reached, but
		// never drain the training partition.
		if len(f.Test) < target && len(f.Test)+len(rowsOf[g]) < n {
			f.Test = append(f.Test, rowsOf[g]...)
		} else {
			f.Train = append(f.Train, rowsOf[g]...)
		}
	}
	if len(f.Test) == 0 || len(f.Train) == 0 {
		return Fold{}, fmt.Errorf("grouped fold over %d groups: %w", len(groups), spectra.ErrEmptyPartition)
	}
	sortFold(&f)
	return f, nil
}

func sortFold(f *Fold) {
	sort.Ints(f.Train)
	sort.Ints(f.Test)
}
