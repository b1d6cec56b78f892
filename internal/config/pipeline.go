package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PipelineConfig is the root configuration for a training run. Fields
// are pointers so a partial JSON file only overrides what it names; the
// Get* accessors supply defaults for everything else.
type PipelineConfig struct {
	// Input columns
	IDColumn         *string  `json:"id_column,omitempty"`
	ReferenceColumn  *string  `json:"reference_column,omitempty"`
	MetaColumns      []string `json:"meta_columns,omitempty"`
	WavelengthPrefix *string  `json:"wavelength_prefix,omitempty"`

	// Scan aggregation
	AggregateBy []string `json:"aggregate_by,omitempty"`
	AggregateFn *string  `json:"aggregate_fn,omitempty"` // "mean" or "median"

	// Outlier filtering
	RemoveOutliers *bool    `json:"remove_outliers,omitempty"`
	OutlierWindow  *int     `json:"outlier_window,omitempty"`
	OutlierAlpha   *float64 `json:"outlier_alpha,omitempty"`

	// Cross-validation
	Scheme         *string  `json:"cv_scheme,omitempty"` // random | stratified | grouped
	TestProportion *float64 `json:"test_proportion,omitempty"`
	StratifyBins   *int     `json:"stratify_bins,omitempty"`
	GroupColumn    *string  `json:"group_column,omitempty"`

	// Train/eval loop
	Pretreatments []int   `json:"pretreatments,omitempty"` // empty = all 13
	Iterations    *int    `json:"iterations,omitempty"`
	TuneLength    *int    `json:"tune_length,omitempty"`
	InnerFolds    *int    `json:"inner_folds,omitempty"`
	Seed          *int64  `json:"seed,omitempty"`
	Workers       *int    `json:"workers,omitempty"`
	TrialTimeout  *string `json:"trial_timeout,omitempty"` // duration string like "2m"

	// Selection
	Strategy     *string `json:"strategy,omitempty"`      // registry name, e.g. "pls"
	SelectMetric *string `json:"select_metric,omitempty"` // RMSE | Rsquared
}

// EmptyPipelineConfig returns a config with every field unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads and validates a PipelineConfig from a JSON
// file. Fields omitted from the file keep their defaults, so partial
// configs are safe.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *PipelineConfig) Validate() error {
	if c.TestProportion != nil {
		if *c.TestProportion <= 0 || *c.TestProportion >= 1 {
			return fmt.Errorf("test_proportion must be in (0,1), got %f", *c.TestProportion)
		}
	}
	if c.OutlierAlpha != nil {
		if *c.OutlierAlpha <= 0 || *c.OutlierAlpha >= 1 {
			return fmt.Errorf("outlier_alpha must be in (0,1), got %f", *c.OutlierAlpha)
		}
	}
	if c.OutlierWindow != nil && *c.OutlierWindow < 1 {
		return fmt.Errorf("outlier_window must be >= 1, got %d", *c.OutlierWindow)
	}
	if c.Iterations != nil && *c.Iterations < 1 {
		return fmt.Errorf("iterations must be >= 1, got %d", *c.Iterations)
	}
	if c.TuneLength != nil && *c.TuneLength < 1 {
		return fmt.Errorf("tune_length must be >= 1, got %d", *c.TuneLength)
	}
	if c.TrialTimeout != nil && *c.TrialTimeout != "" {
		if _, err := time.ParseDuration(*c.TrialTimeout); err != nil {
			return fmt.Errorf("invalid trial_timeout '%s': %w", *c.TrialTimeout, err)
		}
	}
	if c.Scheme != nil {
		switch *c.Scheme {
		case "random", "stratified", "grouped":
		default:
			return fmt.Errorf("cv_scheme must be random, stratified or grouped, got %q", *c.Scheme)
		}
	}
	if c.AggregateFn != nil {
		switch *c.AggregateFn {
		case "mean", "median":
		default:
			return fmt.Errorf("aggregate_fn must be mean or median, got %q", *c.AggregateFn)
		}
	}
	if c.SelectMetric != nil {
		switch *c.SelectMetric {
		case "RMSE", "Rsquared":
		default:
			return fmt.Errorf("select_metric must be RMSE or Rsquared, got %q", *c.SelectMetric)
		}
	}
	for _, p := range c.Pretreatments {
		if p < 1 || p > 13 {
			return fmt.Errorf("pretreatment id %d outside 1..13", p)
		}
	}
	if c.Scheme != nil && *c.Scheme == "grouped" && c.GetGroupColumn() == "" {
		return fmt.Errorf("grouped cv_scheme requires group_column")
	}
	return nil
}

// GetIDColumn returns the id_column value or the default.
func (c *PipelineConfig) GetIDColumn() string {
	if c.IDColumn == nil {
		return "unique.id"
	}
	return *c.IDColumn
}

// GetReferenceColumn returns the reference_column value or the default.
func (c *PipelineConfig) GetReferenceColumn() string {
	if c.ReferenceColumn == nil {
		return "reference"
	}
	return *c.ReferenceColumn
}

// GetWavelengthPrefix returns the wavelength_prefix value or the default.
func (c *PipelineConfig) GetWavelengthPrefix() string {
	if c.WavelengthPrefix == nil {
		return "X"
	}
	return *c.WavelengthPrefix
}

// GetAggregateFn returns the aggregate_fn value or the default.
func (c *PipelineConfig) GetAggregateFn() string {
	if c.AggregateFn == nil {
		return "mean"
	}
	return *c.AggregateFn
}

// GetRemoveOutliers returns the remove_outliers value or the default.
func (c *PipelineConfig) GetRemoveOutliers() bool {
	if c.RemoveOutliers == nil {
		return false // default: report distances, drop nothing
	}
	return *c.RemoveOutliers
}

// GetOutlierWindow returns the outlier_window value or the default.
func (c *PipelineConfig) GetOutlierWindow() int {
	if c.OutlierWindow == nil {
		return 10
	}
	return *c.OutlierWindow
}

// GetOutlierAlpha returns the outlier_alpha value or the default.
func (c *PipelineConfig) GetOutlierAlpha() float64 {
	if c.OutlierAlpha == nil {
		return 0.05
	}
	return *c.OutlierAlpha
}

// GetScheme returns the cv_scheme value or the default.
func (c *PipelineConfig) GetScheme() string {
	if c.Scheme == nil {
		return "random"
	}
	return *c.Scheme
}

// GetTestProportion returns the test_proportion value or the default.
func (c *PipelineConfig) GetTestProportion() float64 {
	if c.TestProportion == nil {
		return 0.25
	}
	return *c.TestProportion
}

// GetStratifyBins returns the stratify_bins value or the default.
func (c *PipelineConfig) GetStratifyBins() int {
	if c.StratifyBins == nil {
		return 5
	}
	return *c.StratifyBins
}

// GetGroupColumn returns the group_column value or the default.
func (c *PipelineConfig) GetGroupColumn() string {
	if c.GroupColumn == nil {
		return ""
	}
	return *c.GroupColumn
}

// GetIterations returns the iterations value or the default.
func (c *PipelineConfig) GetIterations() int {
	if c.Iterations == nil {
		return 10
	}
	return *c.Iterations
}

// GetTuneLength returns the tune_length value or the default.
func (c *PipelineConfig) GetTuneLength() int {
	if c.TuneLength == nil {
		return 10
	}
	return *c.TuneLength
}

// GetInnerFolds returns the inner_folds value or the default.
func (c *PipelineConfig) GetInnerFolds() int {
	if c.InnerFolds == nil {
		return 5
	}
	return *c.InnerFolds
}

// GetSeed returns the seed value or the default.
func (c *PipelineConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetWorkers returns the workers value or the default (0 = GOMAXPROCS).
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetTrialTimeout parses and returns the trial_timeout as a duration.
func (c *PipelineConfig) GetTrialTimeout() time.Duration {
	if c.TrialTimeout == nil || *c.TrialTimeout == "" {
		return 0 // default: unbounded
	}
	d, err := time.ParseDuration(*c.TrialTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetStrategy returns the strategy value or the default.
func (c *PipelineConfig) GetStrategy() string {
	if c.Strategy == nil {
		return "pls"
	}
	return *c.Strategy
}

// GetSelectMetric returns the select_metric value or the default.
func (c *PipelineConfig) GetSelectMetric() string {
	if c.SelectMetric == nil {
		return "RMSE"
	}
	return *c.SelectMetric
}
