// Command train builds cross-validated prediction models from a labeled
// spectral CSV, selects the best pretreatment, and persists the refit
// model artifact plus summary outputs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/harvest-data/spectra.report/internal/config"
	"github.com/harvest-data/spectra.report/internal/db"
	"github.com/harvest-data/spectra.report/internal/model"
	"github.com/harvest-data/spectra.report/internal/report"
	"github.com/harvest-data/spectra.report/internal/spectra"
	"github.com/harvest-data/spectra.report/internal/version"
)

var (
	inputPath   = flag.String("input", "", "Labeled spectral CSV to train on (required)")
	configPath  = flag.String("config", "", "Pipeline config JSON (optional; defaults apply)")
	outDir      = flag.String("out", "out", "Directory for the artifact, predictions, summary and plots")
	dbPath      = flag.String("db", "", "Optional sqlite results database path")
	notes       = flag.String("notes", "", "Free-form note stored with the run")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("spectra.report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(); err != nil {
		log.Fatalf("train: %v", err)
	}
}

func run() error {
	cfg := config.EmptyPipelineConfig()
	if *configPath != "" {
		loaded, err := config.LoadPipelineConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	tbl, err := spectra.ReadCSV(f, spectra.CSVOptions{
		IDColumn:         cfg.GetIDColumn(),
		ReferenceColumn:  cfg.GetReferenceColumn(),
		MetaColumns:      metaColumns(cfg),
		WavelengthPrefix: cfg.GetWavelengthPrefix(),
	})
	f.Close()
	if err != nil {
		return err
	}
	log.Printf("Loaded %d samples x %d wavelengths from %s", tbl.NumSamples(), tbl.NumWavelengths(), *inputPath)

	if len(cfg.AggregateBy) > 0 {
		agg, dropped, err := spectra.Aggregate(tbl, cfg.AggregateBy, spectra.AggregateFunc(cfg.GetAggregateFn()))
		if err != nil {
			return err
		}
		if len(dropped) > 0 {
			log.Printf("Aggregation dropped metadata columns that vary within groups: %v", dropped)
		}
		log.Printf("Aggregated %d scans into %d samples by %v (%s)", tbl.NumSamples(), agg.NumSamples(), cfg.AggregateBy, cfg.GetAggregateFn())
		tbl = agg
	}

	rep, err := spectra.DetectOutliers(tbl, cfg.GetOutlierWindow(), cfg.GetOutlierAlpha())
	if err != nil {
		log.Printf("Warning: outlier detection unavailable, training on full table: %v", err)
	} else {
		log.Printf("Outlier detection flagged %d of %d samples (threshold %.2f, df %d)",
			rep.NumFlagged(), tbl.NumSamples(), rep.Threshold, rep.DF)
		if err := report.SaveDistancePlot(rep, "Mahalanobis distances", filepath.Join(*outDir, "distances.png")); err != nil {
			log.Printf("Warning: %v", err)
		}
		if cfg.GetRemoveOutliers() && rep.NumFlagged() > 0 {
			tbl, err = spectra.RemoveOutliers(tbl, rep)
			if err != nil {
				return err
			}
			log.Printf("Removed outliers, %d samples remain", tbl.NumSamples())
		}
	}

	if err := report.SaveSpectraPlot(tbl, "training spectra", filepath.Join(*outDir, "spectra.png")); err != nil {
		log.Printf("Warning: %v", err)
	}

	strategy, err := model.LookupStrategy(cfg.GetStrategy())
	if err != nil {
		return err
	}

	pretreatments := make([]spectra.Pretreatment, len(cfg.Pretreatments))
	for i, p := range cfg.Pretreatments {
		pretreatments[i] = spectra.Pretreatment(p)
	}
	loopCfg := model.LoopConfig{
		Pretreatments: pretreatments,
		Iterations:    cfg.GetIterations(),
		TuneLength:    cfg.GetTuneLength(),
		InnerFolds:    cfg.GetInnerFolds(),
		Seed:          cfg.GetSeed(),
		Workers:       cfg.GetWorkers(),
		TrialTimeout:  cfg.GetTrialTimeout(),
		CV: model.CVConfig{
			Scheme:         model.Scheme(cfg.GetScheme()),
			TestProportion: cfg.GetTestProportion(),
			StratifyBins:   cfg.GetStratifyBins(),
			GroupColumn:    cfg.GetGroupColumn(),
		},
		Strategy: strategy,
	}

	start := time.Now()
	results, runErr := model.Run(ctx, tbl, loopCfg)
	if runErr != nil {
		log.Printf("Run interrupted (%v); keeping %d completed trials", runErr, len(results))
	} else {
		log.Printf("Completed %d trials in %s", len(results), time.Since(start).Round(time.Millisecond))
	}
	if len(results) == 0 {
		return fmt.Errorf("no trials completed")
	}

	summaries := model.Summarize(results)
	best, err := model.SelectBest(summaries, model.SelectMetric(cfg.GetSelectMetric()))
	if err != nil {
		return err
	}
	log.Printf("Best pretreatment by %s: %s (RMSE %.4f, R² %.4f, modal hyperparams %v)",
		cfg.GetSelectMetric(), best.Pretreatment, best.RMSEMean, best.RSquaredMean, best.ModalHyperparams)

	artifact, err := model.FitArtifact(tbl, best.Pretreatment, strategy, best.ModalHyperparams, best)
	if err != nil {
		return err
	}
	artifactPath := filepath.Join(*outDir, "model.gob")
	af, err := os.Create(artifactPath)
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}
	if err := artifact.Save(af); err != nil {
		af.Close()
		return err
	}
	if err := af.Close(); err != nil {
		return fmt.Errorf("close artifact file: %w", err)
	}
	log.Printf("Saved model artifact to %s", artifactPath)

	if err := writeOutputs(*outDir, results, summaries); err != nil {
		return err
	}

	if *dbPath != "" {
		if err := recordRun(*dbPath, cfg, results, summaries, best); err != nil {
			return err
		}
	}
	return nil
}

// metaColumns returns the configured metadata columns plus any columns
// the aggregation keys or CV grouping need.
func metaColumns(cfg *config.PipelineConfig) []string {
	cols := append([]string(nil), cfg.MetaColumns...)
	want := append([]string(nil), cfg.AggregateBy...)
	if g := cfg.GetGroupColumn(); g != "" {
		want = append(want, g)
	}
	for _, w := range want {
		found := false
		for _, c := range cols {
			if c == w {
				found = true
				break
			}
		}
		if !found {
			cols = append(cols, w)
		}
	}
	return cols
}

func writeOutputs(dir string, results []model.TrialResult, summaries []model.PretreatmentSummary) error {
	var predRows []spectra.PredictionRow
	for _, r := range results {
		for _, p := range r.Predictions {
			obs := p.Observed
			predRows = append(predRows, spectra.PredictionRow{
				UniqueID:     p.UniqueID,
				Iteration:    r.Iteration,
				Pretreatment: int(r.Pretreatment),
				Observed:     &obs,
				Predicted:    p.Predicted,
			})
		}
	}
	pf, err := os.Create(filepath.Join(dir, "predictions.csv"))
	if err != nil {
		return fmt.Errorf("create predictions file: %w", err)
	}
	defer pf.Close()
	if err := spectra.WritePredictionsCSV(pf, predRows); err != nil {
		return err
	}

	sf, err := os.Create(filepath.Join(dir, "summary.csv"))
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer sf.Close()
	if err := report.WriteSummaryCSV(sf, summaries); err != nil {
		return err
	}

	cf, err := os.Create(filepath.Join(dir, "summary.html"))
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer cf.Close()
	return report.WriteSummaryChart(cf, "Pretreatment comparison", summaries)
}

func recordRun(path string, cfg *config.PipelineConfig, results []model.TrialResult, summaries []model.PretreatmentSummary, best model.PretreatmentSummary) error {
	database, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	store := db.NewRunStore(database)
	run := &db.Run{
		Strategy:     cfg.GetStrategy(),
		SelectMetric: cfg.GetSelectMetric(),
		ConfigJSON:   string(cfgJSON),
		Notes:        *notes,
	}
	if err := store.InsertRun(run); err != nil {
		return err
	}
	if err := store.RecordTrialResults(run.RunID, results); err != nil {
		return err
	}
	if err := store.RecordSummaries(run.RunID, summaries); err != nil {
		return err
	}
	if err := store.SetBestPretreatment(run.RunID, best.Pretreatment); err != nil {
		return err
	}
	log.Printf("Recorded run %s in %s", run.RunID, path)
	return nil
}
