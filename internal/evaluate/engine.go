// Package evaluate replays a corpus through the ensemble strategies with a
// walk-forward split: at each step the manager is retrained on every example
// before the cut and scored on the one example after it. Unlike the in-sample
// rankings the manager keeps, these errors are strictly out-of-sample.
package evaluate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"tunecast/internal/corpus"
	"tunecast/internal/ensemble"
)

// StrategyResult is the out-of-sample scorecard for one strategy.
type StrategyResult struct {
	Name        string  `json:"name"`
	RMSE        float64 `json:"rmse"`
	MAE         float64 `json:"mae"`
	Evaluations int     `json:"evaluations"`
	SelectedAs  int     `json:"selected_as_best"`
}

// FoldResult records one walk-forward step.
type FoldResult struct {
	Index       int                `json:"index"`
	TrainSize   int                `json:"train_size"`
	Target      float64            `json:"target"`
	Best        string             `json:"best"`
	Predictions map[string]float64 `json:"predictions"`
}

// Results is the full evaluation output.
type Results struct {
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
	Examples   int              `json:"examples"`
	MinTrain   int              `json:"min_train"`
	Folds      []FoldResult     `json:"folds"`
	Strategies []StrategyResult `json:"strategies"`
}

// Engine runs the walk-forward evaluation.
type Engine struct {
	cfg      ensemble.Config
	data     *corpus.Corpus
	minTrain int

	results *Results
}

// NewEngine creates an evaluation engine. minTrain is the smallest training
// prefix; earlier examples are never scored.
func NewEngine(cfg ensemble.Config, data *corpus.Corpus, minTrain int) *Engine {
	if minTrain < 2 {
		minTrain = 2
	}
	return &Engine{cfg: cfg, data: data, minTrain: minTrain}
}

// Run executes every walk-forward step. It fails only for a corpus too small
// to produce a single step or a cancelled context; per-strategy fit failures
// are already isolated by the manager and simply skew that strategy's errors.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.data.Validate(); err != nil {
		return err
	}
	n := len(e.data.Examples)
	if n <= e.minTrain {
		return fmt.Errorf("need more than %d examples for walk-forward evaluation, got %d", e.minTrain, n)
	}

	results := &Results{
		StartTime: time.Now(),
		Examples:  n,
		MinTrain:  e.minTrain,
	}

	sums := make(map[string]*errorSums)

	for cut := e.minTrain; cut < n; cut++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		manager := ensemble.NewManager(e.cfg)
		if err := manager.TrainAll(ctx, e.data.Examples[:cut], e.data.Targets[:cut]); err != nil {
			return fmt.Errorf("fold %d: %w", cut, err)
		}

		target := e.data.Targets[cut]
		fold := FoldResult{
			Index:       cut,
			TrainSize:   cut,
			Target:      target,
			Best:        manager.Best(),
			Predictions: make(map[string]float64, len(manager.Strategies())),
		}

		for _, name := range manager.Strategies() {
			pred, err := manager.Predict(e.data.Examples[cut], name)
			if err != nil {
				return fmt.Errorf("fold %d: %s: %w", cut, name, err)
			}
			fold.Predictions[name] = pred.FinalScore

			s, ok := sums[name]
			if !ok {
				s = &errorSums{}
				sums[name] = s
			}
			s.add(pred.FinalScore - target)
			if name == fold.Best {
				s.selected++
			}
		}

		results.Folds = append(results.Folds, fold)
		log.Debug().
			Int("fold", cut).
			Str("best", fold.Best).
			Float64("target", target).
			Msg("walk-forward fold evaluated")
	}

	// Registry order from a throwaway manager keeps the report stable.
	for _, name := range ensemble.NewManager(e.cfg).Strategies() {
		s := sums[name]
		results.Strategies = append(results.Strategies, StrategyResult{
			Name:        name,
			RMSE:        s.rmse(),
			MAE:         s.mae(),
			Evaluations: s.n,
			SelectedAs:  s.selected,
		})
	}

	results.EndTime = time.Now()
	e.results = results

	log.Info().
		Int("folds", len(results.Folds)).
		Dur("elapsed", results.EndTime.Sub(results.StartTime)).
		Msg("walk-forward evaluation complete")

	return nil
}

// GetResults returns the evaluation results, or nil before a successful Run.
func (e *Engine) GetResults() *Results {
	return e.results
}

type errorSums struct {
	n        int
	sse      float64
	sae      float64
	selected int
}

func (s *errorSums) add(diff float64) {
	s.n++
	s.sse += diff * diff
	s.sae += math.Abs(diff)
}

func (s *errorSums) rmse() float64 {
	if s.n == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(s.sse / float64(s.n))
}

func (s *errorSums) mae() float64 {
	if s.n == 0 {
		return math.Inf(1)
	}
	return s.sae / float64(s.n)
}
