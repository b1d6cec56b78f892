package spectra

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Pretreatment identifies one of the 13 spectral pretreatment recipes.
// Every recipe is a pure function over a spectrum; recipes that take
// derivatives or windowed fits shrink the wavelength grid at the
// boundaries rather than padding, and the output table carries the
// resulting grid so prediction-time data can be treated identically.
type Pretreatment int

const (
	PretreatRaw    Pretreatment = iota + 1 // 1: identity
	PretreatSNV                            // 2: standard normal variate
	PretreatSNVD1                          // 3: SNV then 1st derivative
	PretreatSNVD2                          // 4: SNV then 2nd derivative
	PretreatD1                             // 5: 1st derivative
	PretreatD2                             // 6: 2nd derivative
	PretreatSG                             // 7: Savitzky-Golay smoothing
	PretreatSNVSG                          // 8: SNV then SG smoothing
	PretreatGapDer                         // 9: gap-segment derivative, gap 11
	PretreatSG5D1                          // 10: SG window 5, 1st derivative
	PretreatSG5D2                          // 11: SG window 5, 2nd derivative
	PretreatSG11D1                         // 12: SG window 11, 1st derivative
	PretreatSG11D2                         // 13: SG window 11, 2nd derivative
)

// sgPolyOrder is the polynomial order for every Savitzky-Golay fit.
const sgPolyOrder = 2

var pretreatNames = map[Pretreatment]string{
	PretreatRaw:    "raw",
	PretreatSNV:    "snv",
	PretreatSNVD1:  "snv+d1",
	PretreatSNVD2:  "snv+d2",
	PretreatD1:     "d1",
	PretreatD2:     "d2",
	PretreatSG:     "sg11",
	PretreatSNVSG:  "snv+sg11",
	PretreatGapDer: "gapder11",
	PretreatSG5D1:  "sg5+d1",
	PretreatSG5D2:  "sg5+d2",
	PretreatSG11D1: "sg11+d1",
	PretreatSG11D2: "sg11+d2",
}

func (p Pretreatment) String() string {
	if name, ok := pretreatNames[p]; ok {
		return name
	}
	return fmt.Sprintf("pretreatment(%d)", int(p))
}

// Valid reports whether p names a known recipe.
func (p Pretreatment) Valid() bool {
	_, ok := pretreatNames[p]
	return ok
}

// AllPretreatments returns the 13 recipes in id order.
func AllPretreatments() []Pretreatment {
	out := make([]Pretreatment, 0, len(pretreatNames))
	for p := PretreatRaw; p <= PretreatSG11D2; p++ {
		out = append(out, p)
	}
	return out
}

// Pretreat applies recipe p to every spectrum of t and returns a new
// table on the (possibly shorter) resulting wavelength grid. The input
// table is not modified.
func Pretreat(t *Table, p Pretreatment) (*Table, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("pretreat: unknown recipe %d", int(p))
	}
	if p == PretreatRaw {
		return t, nil
	}

	wl := t.Wavelengths
	x := t.X

	apply := func(f func([]float64) []float64, trim int) error {
		out := make([][]float64, len(x))
		for i, row := range x {
			out[i] = f(row)
			if out[i] == nil {
				return fmt.Errorf("pretreat %s: spectrum of %d points too short for row %d", p, len(row), i)
			}
		}
		x = out
		if trim > 0 {
			if 2*trim >= len(wl) {
				return fmt.Errorf("pretreat %s: grid of %d wavelengths too short", p, len(wl))
			}
			wl = wl[trim : len(wl)-trim]
		}
		return nil
	}

	snv := func() error { return apply(snvRow, 0) }
	der := func(order, gap int) error {
		return apply(func(row []float64) []float64 { return deriveRow(row, order, gap) }, gap)
	}
	sg := func(window, deriv int) error {
		coeffs, err := sgCoefficients(window, sgPolyOrder, deriv)
		if err != nil {
			return err
		}
		return apply(func(row []float64) []float64 { return convolveRow(row, coeffs) }, window/2)
	}

	var err error
	switch p {
	case PretreatSNV:
		err = snv()
	case PretreatSNVD1:
		if err = snv(); err == nil {
			err = der(1, 1)
		}
	case PretreatSNVD2:
		if err = snv(); err == nil {
			err = der(2, 1)
		}
	case PretreatD1:
		err = der(1, 1)
	case PretreatD2:
		err = der(2, 1)
	case PretreatSG:
		err = sg(11, 0)
	case PretreatSNVSG:
		if err = snv(); err == nil {
			err = sg(11, 0)
		}
	case PretreatGapDer:
		err = der(1, 11)
	case PretreatSG5D1:
		err = sg(5, 1)
	case PretreatSG5D2:
		err = sg(5, 2)
	case PretreatSG11D1:
		err = sg(11, 1)
	case PretreatSG11D2:
		err = sg(11, 2)
	}
	if err != nil {
		return nil, err
	}
	return t.withSpectra(wl, x), nil
}

// snvRow centres a spectrum on its own mean and scales by its own
// standard deviation across wavelengths (row-wise, not column-wise).
func snvRow(row []float64) []float64 {
	mean, sd := stat.MeanStdDev(row, nil)
	out := make([]float64, len(row))
	if sd == 0 {
		// Flat spectrum: centring alone, nothing sensible to scale by.
		for i, v := range row {
			out[i] = v - mean
		}
		return out
	}
	for i, v := range row {
		out[i] = (v - mean) / sd
	}
	return out
}

// deriveRow computes a central finite-difference derivative over a gap
// of g indices. Order 1: x[i+g]-x[i-g]; order 2: x[i+g]-2x[i]+x[i-g].
// Both stencils reach g points either side of the centre, so the result
// drops g points at each boundary. Returns nil when the spectrum is too
// short.
func deriveRow(row []float64, order, gap int) []float64 {
	trim := gap
	if len(row) <= 2*trim {
		return nil
	}
	out := make([]float64, len(row)-2*trim)
	switch order {
	case 1:
		for i := range out {
			c := i + trim
			out[i] = row[c+gap] - row[c-gap]
		}
	case 2:
		for i := range out {
			c := i + trim
			out[i] = row[c+gap] - 2*row[c] + row[c-gap]
		}
	}
	return out
}

// convolveRow applies a symmetric convolution kernel (len odd), dropping
// the half-window at each boundary. Returns nil when the spectrum is
// shorter than the kernel.
func convolveRow(row []float64, kernel []float64) []float64 {
	h := len(kernel) / 2
	if len(row) < len(kernel) {
		return nil
	}
	out := make([]float64, len(row)-2*h)
	for i := range out {
		c := i + h
		acc := 0.0
		for k, w := range kernel {
			acc += w * row[c+k-h]
		}
		out[i] = acc
	}
	return out
}

// sgCoefficients builds Savitzky-Golay convolution coefficients for a
// window of the given (odd) size, polynomial order and derivative
// order, by solving the local least-squares fit once. The kernel is
// applied by convolveRow at every interior point.
func sgCoefficients(window, polyOrder, deriv int) ([]float64, error) {
	if window%2 == 0 || window < 3 {
		return nil, fmt.Errorf("savitzky-golay: window %d must be odd and >= 3", window)
	}
	if deriv > polyOrder {
		return nil, fmt.Errorf("savitzky-golay: derivative %d exceeds polynomial order %d", deriv, polyOrder)
	}
	h := window / 2

	// Vandermonde over offsets -h..h.
	a := mat.NewDense(window, polyOrder+1, nil)
	for r := 0; r < window; r++ {
		off := float64(r - h)
		v := 1.0
		for c := 0; c <= polyOrder; c++ {
			a.Set(r, c, v)
			v *= off
		}
	}

	// Row `deriv` of the pseudo-inverse (A^T A)^-1 A^T gives the fitted
	// polynomial coefficient at the window centre; scale by deriv! for
	// the derivative value.
	var ata mat.Dense
	ata.Mul(a.T(), a)
	var pinv mat.Dense
	if err := pinv.Solve(&ata, a.T()); err != nil {
		return nil, fmt.Errorf("savitzky-golay: normal equations singular: %w", err)
	}

	fact := 1.0
	for k := 2; k <= deriv; k++ {
		fact *= float64(k)
	}
	coeffs := make([]float64, window)
	for k := 0; k < window; k++ {
		coeffs[k] = pinv.At(deriv, k) * fact
	}
	return coeffs, nil
}
