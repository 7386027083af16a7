package ensemble

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics methods the manager reports through.
type MetricsInterface interface {
	PredictionsInc()
	TrainFailuresInc()
	FallbackUseInc()
	LatencyObserve(float64)
	ScoreObserve(float64)
}

// Ranking is one row of the manager's performance table.
type Ranking struct {
	Name string  `json:"name"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
}

type performance struct {
	rmse   float64
	mae    float64
	fitErr error
}

// Manager owns a fixed registry of strategies, trains all of them against a
// shared corpus, ranks them by in-sample error, and serves predictions with
// automatic best-model selection.
//
// The fallback chain for Predict is: explicitly requested strategy, then the
// best strategy from the last training run, then the voting strategy — which
// itself degrades to an arithmetic mean when untrained. A well-formed,
// non-empty component list therefore always yields a prediction.
type Manager struct {
	mu         sync.RWMutex
	order      []string
	strategies map[string]Strategy
	perf       map[string]performance
	best       string
	trained    bool
	metrics    MetricsInterface
}

// NewManager builds a manager with the standard registry: two weighted, two
// stacked, one dynamic, and one voting strategy. Registry order is the
// tie-break order for best-model selection.
func NewManager(cfg Config) *Manager {
	return NewManagerWithMetrics(cfg, nil)
}

// NewManagerWithMetrics is NewManager with an optional metrics sink.
func NewManagerWithMetrics(cfg Config, metrics MetricsInterface) *Manager {
	m := &Manager{
		strategies: make(map[string]Strategy),
		perf:       make(map[string]performance),
		metrics:    metrics,
	}
	for _, s := range []Strategy{
		NewWeighted(WeightedRidge, cfg),
		NewWeighted(WeightedLinear, cfg),
		NewStacked(MetaForest, cfg),
		NewStacked(MetaRidge, cfg),
		NewDynamic(cfg),
		NewVoting(cfg),
	} {
		m.order = append(m.order, s.Name())
		m.strategies[s.Name()] = s
	}
	return m
}

// Strategies returns the registry names in insertion order.
func (m *Manager) Strategies() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// IsTrained reports whether TrainAll has completed at least once.
func (m *Manager) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Best returns the name of the currently selected strategy, or "" when no
// strategy has trained successfully.
func (m *Manager) Best() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.best
}

type trainResult struct {
	name string
	perf performance
}

// TrainAll fits every registered strategy against the shared corpus and
// ranks them by in-sample RMSE. Training fans out across goroutines — the
// strategies share no state — and each strategy fails in isolation: a fit
// error or panic records that strategy at RMSE +Inf (visible in rankings,
// never selectable) while the others continue. Context cancellation is
// honored at per-strategy granularity.
//
// Only a structurally invalid corpus fails the call itself.
func (m *Manager) TrainAll(ctx context.Context, examples [][]PredictionComponent, targets []float64) error {
	if err := validateCorpus(examples, targets); err != nil {
		return err
	}

	log.Info().
		Int("examples", len(examples)).
		Int("strategies", len(m.order)).
		Msg("training all ensemble strategies")

	results := make(chan trainResult, len(m.order))
	var wg sync.WaitGroup
	for _, name := range m.order {
		wg.Add(1)
		go func(name string, s Strategy) {
			defer wg.Done()
			results <- trainResult{name: name, perf: m.trainOne(ctx, s, examples, targets)}
		}(name, m.strategies[name])
	}
	wg.Wait()
	close(results)

	m.mu.Lock()
	for r := range results {
		m.perf[r.name] = r.perf
		if r.perf.fitErr != nil {
			log.Error().Err(r.perf.fitErr).Str("strategy", r.name).Msg("strategy failed to train")
			if m.metrics != nil {
				m.metrics.TrainFailuresInc()
			}
		} else {
			log.Info().
				Str("strategy", r.name).
				Float64("rmse", r.perf.rmse).
				Float64("mae", r.perf.mae).
				Msg("strategy trained")
		}
	}

	m.best = ""
	bestRMSE := math.Inf(1)
	for _, name := range m.order {
		if p, ok := m.perf[name]; ok && p.rmse < bestRMSE {
			bestRMSE = p.rmse
			m.best = name
		}
	}
	m.trained = true
	best := m.best
	m.mu.Unlock()

	if best == "" {
		log.Warn().Msg("no strategy trained successfully, predictions will use the voting fallback")
	} else {
		log.Info().Str("strategy", best).Float64("rmse", bestRMSE).Msg("selected best strategy")
	}

	return nil
}

// trainOne fits a single strategy and scores it in-sample by re-predicting
// the training corpus. Panics are converted to errors so a crashing
// strategy cannot corrupt the run.
func (m *Manager) trainOne(ctx context.Context, s Strategy, examples [][]PredictionComponent, targets []float64) (p performance) {
	p = performance{rmse: math.Inf(1), mae: math.Inf(1)}
	defer func() {
		if r := recover(); r != nil {
			p = performance{rmse: math.Inf(1), mae: math.Inf(1), fitErr: fmt.Errorf("%s: training panicked: %v", s.Name(), r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		p.fitErr = fmt.Errorf("%s: %w", s.Name(), err)
		return p
	}

	if err := s.Fit(examples, targets); err != nil {
		p.fitErr = err
		return p
	}

	pred := make([]float64, len(examples))
	for i, example := range examples {
		if err := ctx.Err(); err != nil {
			p.fitErr = fmt.Errorf("%s: %w", s.Name(), err)
			return p
		}
		out, err := s.Predict(example)
		if err != nil {
			p.fitErr = fmt.Errorf("%s: evaluate: %w", s.Name(), err)
			return p
		}
		pred[i] = out.FinalScore
	}

	var sse, sae float64
	for i := range pred {
		d := pred[i] - targets[i]
		sse += d * d
		sae += math.Abs(d)
	}
	n := float64(len(pred))
	p.rmse = math.Sqrt(sse / n)
	p.mae = sae / n
	return p
}

// Predict serves one prediction. When name is non-empty and registered that
// strategy is used directly (the A/B-testing hook); otherwise the best
// strategy from the last training run; otherwise the voting strategy
// untrained. Never returns an error for a non-empty component list.
func (m *Manager) Predict(components []PredictionComponent, name string) (EnsemblePrediction, error) {
	if err := requireComponents(components); err != nil {
		return EnsemblePrediction{}, err
	}

	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.LatencyObserve(time.Since(start).Seconds())
		}
	}()

	s := m.pick(name)

	pred, err := safePredict(s, components)
	if err != nil {
		// The strategy contract says this cannot happen for non-empty
		// input; degrade to the arithmetic mean rather than surfacing it.
		log.Error().Err(err).Str("strategy", s.Name()).Msg("strategy predict failed, using simple average")
		pred = simpleAverage(s.Name(), components, "prediction failed - using simple average")
		if m.metrics != nil {
			m.metrics.FallbackUseInc()
		}
	}

	if m.metrics != nil {
		m.metrics.PredictionsInc()
		m.metrics.ScoreObserve(pred.FinalScore)
	}

	return pred, nil
}

func (m *Manager) pick(name string) Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name != "" {
		if s, ok := m.strategies[name]; ok {
			return s
		}
		log.Warn().Str("strategy", name).Msg("requested strategy is not registered, falling through")
	}
	if m.best != "" {
		return m.strategies[m.best]
	}
	if m.metrics != nil {
		m.metrics.FallbackUseInc()
	}
	return m.strategies["voting"]
}

// Rankings returns the performance table sorted ascending by RMSE, ties
// broken by registry insertion order. Strategies that failed training appear
// at the bottom with RMSE +Inf.
func (m *Manager) Rankings() []Ranking {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rankings := make([]Ranking, 0, len(m.perf))
	for _, name := range m.order {
		if p, ok := m.perf[name]; ok {
			rankings = append(rankings, Ranking{Name: name, RMSE: p.rmse, MAE: p.mae})
		}
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].RMSE < rankings[j].RMSE
	})
	return rankings
}
