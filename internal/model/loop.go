package model

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/harvest-data/spectra.report/internal/spectra"
	"gonum.org/v1/gonum/mat"
)

// LoopConfig parameterises one training run.
type LoopConfig struct {
	// Pretreatments to evaluate. Empty means all 13.
	Pretreatments []spectra.Pretreatment

	// Iterations is the number of independent folds per pretreatment.
	Iterations int

	// TuneLength is the number of candidate values per hyperparameter
	// in the tuning grid.
	TuneLength int

	// InnerFolds is the k of the internal k-fold tuning CV. Default 5.
	InnerFolds int

	// Seed is the base seed; every trial derives its own generator from
	// it plus (pretreatment, iteration), so results are identical under
	// any worker count.
	Seed int64

	// Workers caps the worker pool. Default GOMAXPROCS.
	Workers int

	// TrialTimeout bounds one trial's hyperparameter search; zero means
	// no bound. An expired trial is recorded as failed, not retried.
	TrialTimeout time.Duration

	CV       CVConfig
	Strategy Strategy
}

func (c LoopConfig) pretreatments() []spectra.Pretreatment {
	if len(c.Pretreatments) == 0 {
		return spectra.AllPretreatments()
	}
	return c.Pretreatments
}

func (c LoopConfig) innerFolds() int {
	if c.InnerFolds < 2 {
		return 5
	}
	return c.InnerFolds
}

func (c LoopConfig) workers() int {
	if c.Workers < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

// Run evaluates every (pretreatment, iteration) pair over the table and
// returns one TrialResult per pair, ordered by (pretreatment,
// iteration). Each pretreatment is applied to the full table once and
// shared read-only across its iterations. Individual trial failures are
// recorded in their results; Run itself only fails on unusable
// configuration. On context cancellation the completed results are
// returned alongside the context error.
func Run(ctx context.Context, tbl *spectra.Table, cfg LoopConfig) ([]TrialResult, error) {
	if !tbl.HasRef {
		return nil, fmt.Errorf("train/eval: table has no reference column")
	}
	if cfg.Iterations < 1 {
		return nil, fmt.Errorf("train/eval: iterations %d < 1", cfg.Iterations)
	}
	if cfg.TuneLength < 1 {
		return nil, fmt.Errorf("train/eval: tune length %d < 1", cfg.TuneLength)
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("train/eval: no model strategy configured")
	}

	pretreatments := cfg.pretreatments()

	// Pretreat once per recipe; a recipe the grid cannot support fails
	// all of its trials up front.
	cache := make(map[spectra.Pretreatment]*spectra.Table, len(pretreatments))
	pretreatErr := make(map[spectra.Pretreatment]string)
	for _, p := range pretreatments {
		out, err := spectra.Pretreat(tbl, p)
		if err != nil {
			log.Printf("train/eval: pretreatment %s unusable: %v", p, err)
			pretreatErr[p] = err.Error()
			continue
		}
		cache[p] = out
	}

	type job struct {
		p    spectra.Pretreatment
		iter int
	}
	jobs := make(chan job)
	var (
		mu      sync.Mutex
		results []TrialResult
		wg      sync.WaitGroup
	)

	for w := 0; w < cfg.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				var res TrialResult
				if msg, bad := pretreatErr[j.p]; bad {
					res = TrialResult{Pretreatment: j.p, Iteration: j.iter, Err: "pretreatment: " + msg}
				} else {
					res = runTrial(ctx, cache[j.p], j.p, j.iter, cfg)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, p := range pretreatments {
		for iter := 1; iter <= cfg.Iterations; iter++ {
			select {
			case jobs <- job{p: p, iter: iter}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(results, func(a, b int) bool {
		if results[a].Pretreatment != results[b].Pretreatment {
			return results[a].Pretreatment < results[b].Pretreatment
		}
		return results[a].Iteration < results[b].Iteration
	})
	return results, ctx.Err()
}

// trialSeed derives a per-trial seed so a trial's generator does not
// depend on which worker picks it up.
func trialSeed(base int64, p spectra.Pretreatment, iter int) int64 {
	return base + int64(p)*1_000_003 + int64(iter)*7919
}

// runTrial performs one fold build, tuning search, refit and test
// evaluation. All failure paths land in the returned result's Err.
func runTrial(ctx context.Context, tbl *spectra.Table, p spectra.Pretreatment, iter int, cfg LoopConfig) TrialResult {
	res := TrialResult{Pretreatment: p, Iteration: iter}
	rng := rand.New(rand.NewSource(trialSeed(cfg.Seed, p, iter)))

	if cfg.TrialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TrialTimeout)
		defer cancel()
	}

	fold, err := BuildFold(tbl, cfg.CV, rng)
	if err != nil {
		res.Err = err.Error()
		return res
	}

	trainX, trainY := partitionData(tbl, fold.Train)
	testX, testY := partitionData(tbl, fold.Test)

	hp, err := tune(ctx, cfg.Strategy, trainX, trainY, cfg.TuneLength, cfg.innerFolds(), rng)
	if err != nil {
		res.Err = err.Error()
		return res
	}

	fitted, err := cfg.Strategy.Fit(trainX, trainY, hp)
	if err != nil {
		res.Err = fmt.Sprintf("refit: %v", err)
		return res
	}
	pred, err := fitted.Predict(testX)
	if err != nil {
		res.Err = fmt.Sprintf("predict: %v", err)
		return res
	}

	res.Hyperparams = hp
	res.Metrics = computeMetrics(testY, pred)
	res.Predictions = make([]Prediction, len(fold.Test))
	for i, r := range fold.Test {
		res.Predictions[i] = Prediction{
			UniqueID:  tbl.IDs[r],
			Observed:  testY[i],
			Predicted: pred[i],
		}
	}
	return res
}

// tune grid-searches the strategy's candidates with an internal k-fold
// CV over the training partition, returning the configuration with the
// lowest mean validation RMSE. Earlier candidates win ties. The search
// checks ctx between candidates so a timeout fails the trial instead of
// hanging the batch.
func tune(ctx context.Context, s Strategy, x *mat.Dense, y []float64, tuneLength, k int, rng *rand.Rand) (Hyperparams, error) {
	grid := s.Grid(tuneLength)
	if len(grid) == 0 {
		return nil, fmt.Errorf("tune: strategy %s proposed no candidates", s.Name())
	}
	if len(grid) == 1 {
		return grid[0], nil
	}

	n, _ := x.Dims()
	if k > n {
		k = n
	}
	perm := rng.Perm(n)

	best := -1
	bestScore := 0.0
	for ci, hp := range grid {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tune: %w after %d of %d candidates", ctx.Err(), ci, len(grid))
		default:
		}

		var sse float64
		var count int
		usable := true
		for f := 0; f < k; f++ {
			lo := f * n / k
			hi := (f + 1) * n / k
			if lo >= hi {
				continue
			}
			val := perm[lo:hi]
			tr := make([]int, 0, n-len(val))
			tr = append(tr, perm[:lo]...)
			tr = append(tr, perm[hi:]...)

			fx, fy := sliceData(x, y, tr)
			vx, vy := sliceData(x, y, val)
			fitted, err := s.Fit(fx, fy, hp)
			if err != nil {
				usable = false
				break
			}
			pred, err := fitted.Predict(vx)
			if err != nil {
				usable = false
				break
			}
			for i := range pred {
				d := pred[i] - vy[i]
				sse += d * d
			}
			count += len(pred)
		}
		if !usable || count == 0 {
			continue
		}
		score := sse / float64(count)
		if best < 0 || score < bestScore {
			best = ci
			bestScore = score
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("tune: no candidate of %d fit successfully", len(grid))
	}
	return grid[best], nil
}

// partitionData extracts the spectra and references for the given rows.
func partitionData(t *spectra.Table, rows []int) (*mat.Dense, []float64) {
	x := mat.NewDense(len(rows), t.NumWavelengths(), nil)
	y := make([]float64, len(rows))
	for i, r := range rows {
		x.SetRow(i, t.X[r])
		y[i] = t.Refs[r]
	}
	return x, y
}

// sliceData extracts rows of an already-materialised matrix.
func sliceData(x *mat.Dense, y []float64, rows []int) (*mat.Dense, []float64) {
	_, p := x.Dims()
	ox := mat.NewDense(len(rows), p, nil)
	oy := make([]float64, len(rows))
	for i, r := range rows {
		ox.SetRow(i, x.RawRowView(r))
		oy[i] = y[r]
	}
	return ox, oy
}
