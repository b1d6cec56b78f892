package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/harvest-data/spectra.report/internal/model"
)

// WriteSummaryCSV writes the per-pretreatment summary table: one row
// per pretreatment with metric means and sds plus one modal column per
// hyperparameter seen anywhere in the set.
func WriteSummaryCSV(w io.Writer, summaries []model.PretreatmentSummary) error {
	hyperNames := map[string]bool{}
	for _, s := range summaries {
		for k := range s.ModalHyperparams {
			hyperNames[k] = true
		}
	}
	hypers := make([]string, 0, len(hyperNames))
	for k := range hyperNames {
		hypers = append(hypers, k)
	}
	sort.Strings(hypers)

	header := []string{
		"pretreatment_id", "pretreatment", "trials", "failures",
		"rmse_mean", "rmse_sd", "rsquared_mean", "rsquared_sd", "rpd_mean", "bias_mean",
	}
	for _, h := range hypers {
		header = append(header, h+"_mode")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for _, s := range summaries {
		rec := []string{
			strconv.Itoa(int(s.Pretreatment)),
			s.Pretreatment.String(),
			strconv.Itoa(s.Trials),
			strconv.Itoa(s.Failures),
			formatFloat(s.RMSEMean),
			formatFloat(s.RMSESD),
			formatFloat(s.RSquaredMean),
			formatFloat(s.RSquaredSD),
			formatFloat(s.RPDMean),
			formatFloat(s.BiasMean),
		}
		for _, h := range hypers {
			if v, ok := s.ModalHyperparams[h]; ok {
				rec = append(rec, formatFloat(v))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
