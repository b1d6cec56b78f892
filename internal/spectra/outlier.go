package spectra

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// OutlierReport holds the result of multivariate outlier detection over
// a table. Distances are squared Mahalanobis distances on the windowed
// spectral representation; Flags marks rows whose distance exceeds the
// chi-squared critical value.
type OutlierReport struct {
	Distances []float64
	Flags     []bool
	Threshold float64
	DF        int // spectral columns entering the distance after windowing
	Alpha     float64
}

// NumFlagged returns the count of flagged rows.
func (r *OutlierReport) NumFlagged() int {
	n := 0
	for _, f := range r.Flags {
		if f {
			n++
		}
	}
	return n
}

// DetectOutliers computes, for every row, the squared Mahalanobis
// distance of its spectrum to the table mean. The covariance matrix is
// estimated after averaging spectral columns over non-overlapping
// windows of windowSize columns, which keeps the estimate invertible
// when spectral dimensionality exceeds the sample count. A row is
// flagged when its distance exceeds the upper-tail chi-squared critical
// value at significance alpha with the windowed column count as degrees
// of freedom.
//
// Detection never removes rows; pair with RemoveOutliers for filtering.
// A covariance that stays singular after windowing and a small ridge
// surfaces as ErrDegenerateCovariance.
func DetectOutliers(t *Table, windowSize int, alpha float64) (*OutlierReport, error) {
	if windowSize < 1 {
		return nil, fmt.Errorf("detect outliers: window size %d < 1", windowSize)
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("detect outliers: alpha %v outside (0,1)", alpha)
	}
	n := t.NumSamples()
	p := t.NumWavelengths()
	pw := (p + windowSize - 1) / windowSize

	if n <= pw {
		log.Printf("DetectOutliers: %d samples for %d windowed columns; covariance may be poorly conditioned (consider a larger window)", n, pw)
	}

	// Window-average the spectral block.
	z := mat.NewDense(n, pw, nil)
	for i := 0; i < n; i++ {
		row := t.X[i]
		for j := 0; j < pw; j++ {
			lo := j * windowSize
			hi := lo + windowSize
			if hi > p {
				hi = p
			}
			sum := 0.0
			for k := lo; k < hi; k++ {
				sum += row[k]
			}
			z.Set(i, j, sum/float64(hi-lo))
		}
	}

	mean := make([]float64, pw)
	col := make([]float64, n)
	for j := 0; j < pw; j++ {
		mat.Col(col, j, z)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(pw, nil)
	stat.CovarianceMatrix(cov, z, nil)

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		// Ridge the diagonal once before giving up.
		ridge := 1e-8 * mat.Trace(cov) / float64(pw)
		if ridge <= 0 {
			ridge = 1e-12
		}
		for j := 0; j < pw; j++ {
			cov.SetSym(j, j, cov.At(j, j)+ridge)
		}
		if ok := chol.Factorize(cov); !ok {
			return nil, fmt.Errorf("detect outliers (window %d, %d columns): %w", windowSize, pw, ErrDegenerateCovariance)
		}
	}

	dist := distuv.ChiSquared{K: float64(pw)}
	threshold := dist.Quantile(1 - alpha)

	distances := make([]float64, n)
	flags := make([]bool, n)
	centered := mat.NewVecDense(pw, nil)
	solved := mat.NewVecDense(pw, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < pw; j++ {
			centered.SetVec(j, z.At(i, j)-mean[j])
		}
		if err := chol.SolveVecTo(solved, centered); err != nil {
			return nil, fmt.Errorf("detect outliers: solve for row %d (%s): %w", i, t.IDs[i], ErrDegenerateCovariance)
		}
		d2 := mat.Dot(centered, solved)
		distances[i] = d2
		flags[i] = d2 > threshold
	}

	return &OutlierReport{
		Distances: distances,
		Flags:     flags,
		Threshold: threshold,
		DF:        pw,
		Alpha:     alpha,
	}, nil
}

// RemoveOutliers returns a table with the flagged rows dropped. The
// report must come from a detection over the same table.
func RemoveOutliers(t *Table, rep *OutlierReport) (*Table, error) {
	if len(rep.Flags) != t.NumSamples() {
		return nil, fmt.Errorf("remove outliers: report covers %d rows, table has %d", len(rep.Flags), t.NumSamples())
	}
	keep := make([]int, 0, t.NumSamples())
	for i, f := range rep.Flags {
		if !f {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("remove outliers: every row flagged")
	}
	return t.Subset(keep)
}
