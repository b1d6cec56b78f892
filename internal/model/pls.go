package model

import (
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// plsHyperComponents is the single PLS hyperparameter: the number of
// latent components.
const plsHyperComponents = "ncomp"

func init() {
	RegisterStrategy(PLS{})
	gob.Register(&PLSModel{})
}

// PLS is a partial least squares regression strategy (PLS1, NIPALS).
// It ships in-repo so the pipeline works out of the box; any Strategy
// implementation can replace it.
type PLS struct{}

func (PLS) Name() string { return "pls" }

// Grid proposes component counts 1..tuneLength. Fit clamps a candidate
// to the rank the training partition supports, so oversized candidates
// degrade gracefully instead of failing.
func (PLS) Grid(tuneLength int) []Hyperparams {
	if tuneLength < 1 {
		tuneLength = 1
	}
	grid := make([]Hyperparams, tuneLength)
	for i := range grid {
		grid[i] = Hyperparams{plsHyperComponents: float64(i + 1)}
	}
	return grid
}

// Fit trains a PLS1 model by NIPALS: each component extracts the X
// direction of maximal covariance with the residual y, then deflates.
func (PLS) Fit(x *mat.Dense, y []float64, hp Hyperparams) (Fitted, error) {
	n, p := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("pls: %d rows but %d responses", n, len(y))
	}
	if n < 2 {
		return nil, fmt.Errorf("pls: need at least 2 training samples, have %d", n)
	}
	ncomp := int(hp[plsHyperComponents])
	if ncomp < 1 {
		return nil, fmt.Errorf("pls: ncomp %d < 1", ncomp)
	}
	if maxRank := min(n-1, p); ncomp > maxRank {
		ncomp = maxRank
	}

	// Centre X and y.
	xMean := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		xMean[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	e := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			e.Set(i, j, x.At(i, j)-xMean[j])
		}
	}
	f := mat.NewVecDense(n, nil)
	for i, v := range y {
		f.SetVec(i, v-yMean)
	}

	w := mat.NewDense(p, ncomp, nil)  // weights
	pl := mat.NewDense(p, ncomp, nil) // loadings
	q := make([]float64, ncomp)       // y loadings

	wv := mat.NewVecDense(p, nil)
	tv := mat.NewVecDense(n, nil)
	pv := mat.NewVecDense(p, nil)
	extracted := 0
	for a := 0; a < ncomp; a++ {
		// w_a = E^T f, normalised.
		wv.MulVec(e.T(), f)
		norm := mat.Norm(wv, 2)
		if norm < 1e-12 {
			break // residual y carries no covariance with X
		}
		wv.ScaleVec(1/norm, wv)

		// Scores t_a = E w_a.
		tv.MulVec(e, wv)
		tt := mat.Dot(tv, tv)
		if tt < 1e-12 {
			break
		}

		// Loadings p_a = E^T t / (t^T t), q_a = f^T t / (t^T t).
		pv.MulVec(e.T(), tv)
		pv.ScaleVec(1/tt, pv)
		qa := mat.Dot(f, tv) / tt

		w.SetCol(a, rawVec(wv))
		pl.SetCol(a, rawVec(pv))
		q[a] = qa

		// Deflate: E -= t p^T, f -= q t.
		var tp mat.Dense
		tp.Mul(tv, pv.T())
		e.Sub(e, &tp)
		fDeflated := mat.NewVecDense(n, nil)
		fDeflated.AddScaledVec(f, -qa, tv)
		f.CopyVec(fDeflated)

		extracted++
	}
	if extracted == 0 {
		return nil, fmt.Errorf("pls: no covariance between spectra and reference")
	}

	// Regression vector in the original X space:
	// b = W (P^T W)^-1 q over the extracted components.
	wa := w.Slice(0, p, 0, extracted).(*mat.Dense)
	pa := pl.Slice(0, p, 0, extracted).(*mat.Dense)
	var ptw mat.Dense
	ptw.Mul(pa.T(), wa)
	qv := mat.NewVecDense(extracted, q[:extracted])
	sol := mat.NewVecDense(extracted, nil)
	if err := sol.SolveVec(&ptw, qv); err != nil {
		return nil, fmt.Errorf("pls: loading system singular at %d components: %w", extracted, err)
	}
	b := mat.NewVecDense(p, nil)
	b.MulVec(wa, sol)

	coef := make([]float64, p)
	copy(coef, rawVec(b))
	return &PLSModel{
		XMean: xMean,
		YMean: yMean,
		Coef:  coef,
		NComp: extracted,
	}, nil
}

// PLSModel is a fitted PLS1 model: a regression vector in the original
// (pretreated) spectral space plus centring terms.
type PLSModel struct {
	XMean []float64
	YMean float64
	Coef  []float64
	NComp int
}

// Predict applies the regression vector to each row of x.
func (m *PLSModel) Predict(x *mat.Dense) ([]float64, error) {
	n, p := x.Dims()
	if p != len(m.Coef) {
		return nil, fmt.Errorf("pls predict: %d spectral columns, model trained on %d", p, len(m.Coef))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		acc := m.YMean
		for j := 0; j < p; j++ {
			acc += (x.At(i, j) - m.XMean[j]) * m.Coef[j]
		}
		if math.IsNaN(acc) || math.IsInf(acc, 0) {
			return nil, fmt.Errorf("pls predict: non-finite prediction for row %d", i)
		}
		out[i] = acc
	}
	return out, nil
}

func rawVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
