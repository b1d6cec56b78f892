package report

import (
	"fmt"
	"image/color"

	"github.com/harvest-data/spectra.report/internal/spectra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// maxSpectraLines caps how many spectra one PNG draws; a few dozen
// lines already shows the envelope and scatter behaviour.
const maxSpectraLines = 50

// SaveSpectraPlot draws up to maxSpectraLines spectra of the table as
// intensity-over-wavelength lines and saves a PNG.
func SaveSpectraPlot(t *spectra.Table, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "wavelength (nm)"
	p.Y.Label.Text = "intensity"

	stride := 1
	if t.NumSamples() > maxSpectraLines {
		stride = t.NumSamples() / maxSpectraLines
	}
	for i := 0; i < t.NumSamples(); i += stride {
		pts := make(plotter.XYs, t.NumWavelengths())
		for j, wl := range t.Wavelengths {
			pts[j] = plotter.XY{X: float64(wl), Y: t.X[i][j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("spectra plot: %w", err)
		}
		line.Width = vg.Points(0.5)
		line.Color = color.RGBA{R: 70, G: 130, B: 180, A: 90}
		p.Add(line)
	}

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("spectra plot: save: %w", err)
	}
	return nil
}

// SaveDistancePlot draws each sample's squared Mahalanobis distance
// with the chi-squared threshold as a horizontal line, flagged samples
// in red, and saves a PNG.
func SaveDistancePlot(rep *spectra.OutlierReport, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sample index"
	p.Y.Label.Text = "squared Mahalanobis distance"

	var keep, flagged plotter.XYs
	for i, d := range rep.Distances {
		pt := plotter.XY{X: float64(i), Y: d}
		if rep.Flags[i] {
			flagged = append(flagged, pt)
		} else {
			keep = append(keep, pt)
		}
	}

	if len(keep) > 0 {
		s, err := plotter.NewScatter(keep)
		if err != nil {
			return fmt.Errorf("distance plot: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
		p.Add(s)
		p.Legend.Add("kept", s)
	}
	if len(flagged) > 0 {
		s, err := plotter.NewScatter(flagged)
		if err != nil {
			return fmt.Errorf("distance plot: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 200, G: 40, B: 40, A: 255}
		p.Add(s)
		p.Legend.Add("flagged", s)
	}

	thresh := plotter.XYs{
		{X: 0, Y: rep.Threshold},
		{X: float64(len(rep.Distances) - 1), Y: rep.Threshold},
	}
	line, err := plotter.NewLine(thresh)
	if err != nil {
		return fmt.Errorf("distance plot: %w", err)
	}
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("chi² threshold (alpha %.2g)", rep.Alpha), line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("distance plot: save: %w", err)
	}
	return nil
}
