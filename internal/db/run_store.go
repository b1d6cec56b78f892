package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvest-data/spectra.report/internal/model"
	"github.com/harvest-data/spectra.report/internal/spectra"
)

// Run records one invocation of the train/eval loop.
type Run struct {
	RunID            string
	CreatedAt        time.Time
	Strategy         string
	SelectMetric     string
	ConfigJSON       string
	BestPretreatment *int
	Notes            string
}

// RunStore persists runs and their trial results and summaries.
type RunStore struct {
	db *DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// InsertRun creates a run row. An empty RunID is filled with a new UUID.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, created_at, strategy, select_metric, config_json, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAt, run.Strategy, run.SelectMetric,
		nullString(run.ConfigJSON), nullString(run.Notes),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SetBestPretreatment records the winning pretreatment for a run.
func (s *RunStore) SetBestPretreatment(runID string, p spectra.Pretreatment) error {
	res, err := s.db.Exec(`UPDATE runs SET best_pretreatment = ? WHERE run_id = ?`, int(p), runID)
	if err != nil {
		return fmt.Errorf("set best pretreatment: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("set best pretreatment: run %s not found", runID)
	}
	return nil
}

// RecordTrialResults stores every trial result of a run in one
// transaction.
func (s *RunStore) RecordTrialResults(runID string, results []model.TrialResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record trial results: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trial_results
			(run_id, pretreatment_id, iteration, rmse, rsquared, rpd, bias, hyperparams_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("record trial results: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		hp, err := json.Marshal(r.Hyperparams)
		if err != nil {
			return fmt.Errorf("record trial results: marshal hyperparams: %w", err)
		}
		if _, err := stmt.Exec(
			runID, int(r.Pretreatment), r.Iteration,
			r.Metrics.RMSE, r.Metrics.RSquared, r.Metrics.RPD, r.Metrics.Bias,
			string(hp), nullString(r.Err),
		); err != nil {
			return fmt.Errorf("record trial (%s, %d): %w", r.Pretreatment, r.Iteration, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record trial results: %w", err)
	}
	return nil
}

// RecordSummaries stores the per-pretreatment summary rows of a run.
func (s *RunStore) RecordSummaries(runID string, summaries []model.PretreatmentSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record summaries: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO summaries
			(run_id, pretreatment_id, trials, failures,
			 rmse_mean, rmse_sd, rsquared_mean, rsquared_sd, rpd_mean, bias_mean,
			 modal_hyperparams_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("record summaries: %w", err)
	}
	defer stmt.Close()

	for _, sm := range summaries {
		hp, err := json.Marshal(sm.ModalHyperparams)
		if err != nil {
			return fmt.Errorf("record summaries: marshal hyperparams: %w", err)
		}
		if _, err := stmt.Exec(
			runID, int(sm.Pretreatment), sm.Trials, sm.Failures,
			sm.RMSEMean, sm.RMSESD, sm.RSquaredMean, sm.RSquaredSD,
			sm.RPDMean, sm.BiasMean, string(hp),
		); err != nil {
			return fmt.Errorf("record summary %s: %w", sm.Pretreatment, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record summaries: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, created_at, strategy, select_metric, config_json, best_pretreatment, notes
		FROM runs WHERE run_id = ?`, runID)

	var run Run
	var cfg, notes sql.NullString
	var best sql.NullInt64
	if err := row.Scan(&run.RunID, &run.CreatedAt, &run.Strategy, &run.SelectMetric, &cfg, &best, &notes); err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.ConfigJSON = cfg.String
	run.Notes = notes.String
	if best.Valid {
		v := int(best.Int64)
		run.BestPretreatment = &v
	}
	return &run, nil
}

// ListRuns returns all runs, newest first.
func (s *RunStore) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, created_at, strategy, select_metric, config_json, best_pretreatment, notes
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var cfg, notes sql.NullString
		var best sql.NullInt64
		if err := rows.Scan(&run.RunID, &run.CreatedAt, &run.Strategy, &run.SelectMetric, &cfg, &best, &notes); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.ConfigJSON = cfg.String
		run.Notes = notes.String
		if best.Valid {
			v := int(best.Int64)
			run.BestPretreatment = &v
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// TrialResultsForRun fetches a run's trial results ordered by
// (pretreatment, iteration).
func (s *RunStore) TrialResultsForRun(runID string) ([]model.TrialResult, error) {
	rows, err := s.db.Query(`
		SELECT pretreatment_id, iteration, rmse, rsquared, rpd, bias, hyperparams_json, error
		FROM trial_results WHERE run_id = ?
		ORDER BY pretreatment_id, iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("trial results for %s: %w", runID, err)
	}
	defer rows.Close()

	var results []model.TrialResult
	for rows.Next() {
		var r model.TrialResult
		var pid int
		var hp string
		var errTag sql.NullString
		if err := rows.Scan(&pid, &r.Iteration, &r.Metrics.RMSE, &r.Metrics.RSquared,
			&r.Metrics.RPD, &r.Metrics.Bias, &hp, &errTag); err != nil {
			return nil, fmt.Errorf("trial results for %s: %w", runID, err)
		}
		r.Pretreatment = spectra.Pretreatment(pid)
		r.Err = errTag.String
		if hp != "" && hp != "null" {
			if err := json.Unmarshal([]byte(hp), &r.Hyperparams); err != nil {
				return nil, fmt.Errorf("trial results for %s: unmarshal hyperparams: %w", runID, err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
