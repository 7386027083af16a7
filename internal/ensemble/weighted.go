package ensemble

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"tunecast/internal/regress"
)

// WeightedMethod selects the regression behind a WeightedStrategy.
type WeightedMethod string

const (
	// WeightedRidge learns weights with an L2 penalty.
	WeightedRidge WeightedMethod = "ridge"
	// WeightedLinear learns weights with plain least squares.
	WeightedLinear WeightedMethod = "linear"
)

// WeightedStrategy learns final = intercept + sum(weight[slot] * score[slot])
// with a non-negative weight constraint. Negative weights would encode "the
// lower this opinion, the better", which is uninterpretable for opinions
// defined as higher-is-better, so the constraint is part of the model rather
// than a post-processing step.
type WeightedStrategy struct {
	mu     sync.RWMutex
	name   string
	method WeightedMethod
	alpha  float64
	folds  int
	minCV  int

	trained   bool
	slots     []string
	weights   map[string]float64
	intercept float64
	errRMSE   float64
	errApprox bool // in-sample estimate, corpus too small for CV
}

// NewWeighted builds a weighted strategy named "weighted_<method>".
func NewWeighted(method WeightedMethod, cfg Config) *WeightedStrategy {
	cfg = cfg.withDefaults()
	alpha := cfg.RidgeAlpha
	if method == WeightedLinear {
		alpha = 0
	}
	return &WeightedStrategy{
		name:   fmt.Sprintf("weighted_%s", method),
		method: method,
		alpha:  alpha,
		folds:  cfg.CVFolds,
		minCV:  cfg.MinCVSamples,
	}
}

func (w *WeightedStrategy) Name() string { return w.name }

func (w *WeightedStrategy) IsTrained() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.trained
}

// Fit learns non-negative per-slot weights by regressing component scores
// against the targets. The error estimate is k-fold cross-validated RMSE
// when the corpus is large enough, otherwise the in-sample training RMSE.
func (w *WeightedStrategy) Fit(examples [][]PredictionComponent, targets []float64) error {
	if err := validateCorpus(examples, targets); err != nil {
		return fmt.Errorf("%s: %w", w.name, err)
	}

	slots := slotNames(examples[0])
	x := make([][]float64, len(examples))
	for i, example := range examples {
		x[i] = componentScores(example)
	}

	model, err := regress.FitNNLS(x, targets, w.alpha)
	if err != nil {
		return fmt.Errorf("%s: fit weights: %w", w.name, err)
	}

	errRMSE, approx := w.estimateError(x, targets, model)

	weights := make(map[string]float64, len(slots))
	for i, slot := range slots {
		weights[slot] = model.Weights[i]
	}

	w.mu.Lock()
	w.slots = slots
	w.weights = weights
	w.intercept = model.Intercept
	w.errRMSE = errRMSE
	w.errApprox = approx
	w.trained = true
	w.mu.Unlock()

	log.Info().
		Str("strategy", w.name).
		Interface("weights", weights).
		Float64("intercept", model.Intercept).
		Float64("rmse", errRMSE).
		Bool("rmse_in_sample", approx).
		Msg("trained weighted strategy")

	return nil
}

func (w *WeightedStrategy) estimateError(x [][]float64, targets []float64, model *regress.LinearModel) (rmse float64, approx bool) {
	if len(x) >= w.minCV {
		cv, err := regress.CrossValRMSE(x, targets, w.folds, func(fx [][]float64, fy []float64) (*regress.LinearModel, error) {
			return regress.FitNNLS(fx, fy, w.alpha)
		})
		if err == nil {
			return cv, false
		}
		log.Warn().Err(err).Str("strategy", w.name).Msg("cross-validation failed, using in-sample error")
	}
	pred := make([]float64, len(x))
	for i := range x {
		pred[i] = model.Predict(x[i])
	}
	return regress.RMSE(pred, targets), true
}

// Predict combines the given components with the learned weights. Components
// whose name was never seen at fit time contribute nothing to the score;
// they are logged and listed in the prediction metadata instead of failing
// the call. Untrained instances fall back to an unweighted mean with uniform
// implicit weights at confidence 0.5.
func (w *WeightedStrategy) Predict(components []PredictionComponent) (EnsemblePrediction, error) {
	if err := requireComponents(components); err != nil {
		return EnsemblePrediction{}, err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.trained {
		uniform := make(map[string]float64, len(components))
		for _, c := range components {
			uniform[c.Name] = 1.0 / float64(len(components))
		}
		pred := simpleAverage(w.name, components, weightReasoning(components, uniform))
		pred.Metadata = map[string]any{"weights": uniform, "intercept": 0.0}
		return pred, nil
	}

	sum := w.intercept
	var unknown []string
	for _, c := range components {
		if weight, ok := w.weights[c.Name]; ok {
			sum += weight * c.Score
		} else {
			unknown = append(unknown, c.Name)
		}
	}
	if len(unknown) > 0 {
		log.Warn().
			Str("strategy", w.name).
			Strs("unknown_components", unknown).
			Msg("components not seen at fit time were excluded from scoring")
	}

	// Confidence reflects agreement among the currently given opinions, not
	// historical calibration: tightly clustered scores read as consensus.
	confidence := clamp(1.0-popStdDev(componentScores(components)), minConfidence, maxConfidence)

	metadata := map[string]any{
		"weights":        w.weightsCopy(),
		"intercept":      w.intercept,
		"rmse":           w.errRMSE,
		"rmse_in_sample": w.errApprox,
	}
	if len(unknown) > 0 {
		metadata["unknown_components"] = unknown
	}

	return newPrediction(w.name, sum, confidence, components, weightReasoning(components, w.weights), metadata), nil
}

// weightsCopy returns a snapshot of the learned weight table. Callers must
// hold at least a read lock or use WeightTable.
func (w *WeightedStrategy) weightsCopy() map[string]float64 {
	out := make(map[string]float64, len(w.weights))
	for k, v := range w.weights {
		out[k] = v
	}
	return out
}

// WeightTable returns the learned per-slot weights, or nil if untrained.
func (w *WeightedStrategy) WeightTable() map[string]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.trained {
		return nil
	}
	return w.weightsCopy()
}

// Intercept returns the learned intercept (zero if untrained).
func (w *WeightedStrategy) Intercept() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.intercept
}

func weightReasoning(components []PredictionComponent, weights map[string]float64) string {
	var b strings.Builder
	b.WriteString("weighted combination:")
	for _, c := range components {
		if weight, ok := weights[c.Name]; ok {
			fmt.Fprintf(&b, " %s(%.2f)", c.Name, weight)
		}
	}
	return b.String()
}
