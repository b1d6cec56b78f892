// Package report renders training-run outputs for human review: an
// HTML comparison chart of the pretreatment summaries and PNG plots of
// spectra and outlier distances.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/harvest-data/spectra.report/internal/model"
)

// WriteSummaryChart renders a standalone HTML page comparing the mean
// RMSE and R^2 of every pretreatment, failures annotated in the series
// labels.
func WriteSummaryChart(w io.Writer, title string, summaries []model.PretreatmentSummary) error {
	if len(summaries) == 0 {
		return fmt.Errorf("summary chart: no summaries")
	}

	x := make([]string, len(summaries))
	rmse := make([]opts.BarData, len(summaries))
	rsq := make([]opts.BarData, len(summaries))
	for i, s := range summaries {
		label := s.Pretreatment.String()
		if s.Failures > 0 {
			label = fmt.Sprintf("%s (%d/%d failed)", label, s.Failures, s.Trials)
		}
		x[i] = label
		rmse[i] = opts.BarData{Value: s.RMSEMean}
		rsq[i] = opts.BarData{Value: s.RSquaredMean}
	}

	rmseBar := charts.NewBar()
	rmseBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "mean RMSE per pretreatment (lower is better)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	rmseBar.SetXAxis(x).
		AddSeries("RMSE", rmse,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	rsqBar := charts.NewBar()
	rsqBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Subtitle: "mean R² per pretreatment (higher is better)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	rsqBar.SetXAxis(x).
		AddSeries("R²", rsq,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(rmseBar, rsqBar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("summary chart: render: %w", err)
	}
	return nil
}
