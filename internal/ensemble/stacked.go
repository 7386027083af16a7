package ensemble

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"tunecast/internal/regress"
)

// MetaLearner selects the meta-model behind a StackedStrategy.
type MetaLearner string

const (
	// MetaForest stacks with a regression random forest.
	MetaForest MetaLearner = "rf"
	// MetaRidge stacks with a ridge regression, a simpler linear alternative.
	MetaRidge MetaLearner = "ridge"
)

// StackedStrategy flattens each instance into a (score, confidence) pair per
// slot and trains a meta-learner over the 2K-wide feature vectors. Unlike the
// weighted strategy it can pick up non-linear interactions between opinions,
// at the cost of interpretability.
type StackedStrategy struct {
	mu          sync.RWMutex
	name        string
	meta        MetaLearner
	alpha       float64
	forestCfg   regress.ForestConfig
	targetRange float64

	trained     bool
	slots       []string
	forest      *regress.Forest
	linear      *regress.LinearModel
	trainRMSE   float64
	importances map[string]float64
}

// NewStacked builds a stacked strategy named "stacked_<meta>".
func NewStacked(meta MetaLearner, cfg Config) *StackedStrategy {
	cfg = cfg.withDefaults()
	return &StackedStrategy{
		name:        fmt.Sprintf("stacked_%s", meta),
		meta:        meta,
		alpha:       cfg.RidgeAlpha,
		forestCfg:   cfg.Forest,
		targetRange: cfg.TargetRange,
	}
}

func (s *StackedStrategy) Name() string { return s.name }

func (s *StackedStrategy) IsTrained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trained
}

// Fit trains the meta-learner and records the in-sample training RMSE. For
// the forest meta-learner the per-feature impurity importances are kept as
// diagnostics keyed "<slot>_score" / "<slot>_confidence"; they never affect
// scoring.
func (s *StackedStrategy) Fit(examples [][]PredictionComponent, targets []float64) error {
	if err := validateCorpus(examples, targets); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}

	slots := slotNames(examples[0])
	x := make([][]float64, len(examples))
	for i, example := range examples {
		x[i] = stackedFeatures(example)
	}

	var (
		forest      *regress.Forest
		linear      *regress.LinearModel
		importances map[string]float64
		predict     func([]float64) float64
		err         error
	)
	switch s.meta {
	case MetaForest:
		forest, err = regress.FitForest(x, targets, s.forestCfg)
		if err != nil {
			return fmt.Errorf("%s: fit meta-learner: %w", s.name, err)
		}
		predict = forest.Predict
		importances = make(map[string]float64, 2*len(slots))
		for i, v := range forest.Importances() {
			slot := slots[i/2]
			if i%2 == 0 {
				importances[slot+"_score"] = v
			} else {
				importances[slot+"_confidence"] = v
			}
		}
	case MetaRidge:
		linear, err = regress.FitRidge(x, targets, s.alpha)
		if err != nil {
			return fmt.Errorf("%s: fit meta-learner: %w", s.name, err)
		}
		predict = linear.Predict
	default:
		return fmt.Errorf("%s: unknown meta-learner %q", s.name, s.meta)
	}

	pred := make([]float64, len(x))
	for i := range x {
		pred[i] = predict(x[i])
	}
	trainRMSE := regress.RMSE(pred, targets)

	s.mu.Lock()
	s.slots = slots
	s.forest = forest
	s.linear = linear
	s.trainRMSE = trainRMSE
	s.importances = importances
	s.trained = true
	s.mu.Unlock()

	log.Info().
		Str("strategy", s.name).
		Float64("train_rmse", trainRMSE).
		Int("features", 2*len(slots)).
		Msg("trained stacked strategy")

	return nil
}

// Predict feeds the flattened (score, confidence) vector through the fitted
// meta-learner. Confidence comes from training calibration:
// clamp(1 - trainRMSE/targetRange, 0.1, 0.95). If the given components do
// not cover the fitted slot schema the call degrades to a simple average
// rather than failing; the mismatch is logged and surfaced in metadata.
func (s *StackedStrategy) Predict(components []PredictionComponent) (EnsemblePrediction, error) {
	if err := requireComponents(components); err != nil {
		return EnsemblePrediction{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.trained {
		return simpleAverage(s.name, components, "untrained model - using simple average"), nil
	}

	features, ok := s.featuresFor(components)
	if !ok {
		log.Warn().
			Str("strategy", s.name).
			Strs("expected_slots", s.slots).
			Strs("given", slotNames(components)).
			Msg("component schema does not match fitted slots, using simple average")
		pred := simpleAverage(s.name, components, "component schema mismatch - using simple average")
		pred.Metadata = map[string]any{"schema_mismatch": true, "expected_slots": s.slots}
		return pred, nil
	}

	var score float64
	if s.meta == MetaForest {
		score = s.forest.Predict(features)
	} else {
		score = s.linear.Predict(features)
	}

	confidence := clamp(1.0-s.trainRMSE/s.targetRange, minConfidence, maxConfidence)

	metadata := map[string]any{
		"meta_learner": string(s.meta),
		"train_rmse":   s.trainRMSE,
	}
	if s.importances != nil {
		metadata["feature_importances"] = s.importances
	}

	reasoning := fmt.Sprintf("meta-model (%s) prediction", s.meta)
	return newPrediction(s.name, score, confidence, components, reasoning, metadata), nil
}

// FeatureImportances returns the forest meta-learner's diagnostics, or nil
// for untrained or ridge-stacked instances.
func (s *StackedStrategy) FeatureImportances() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.importances == nil {
		return nil
	}
	out := make(map[string]float64, len(s.importances))
	for k, v := range s.importances {
		out[k] = v
	}
	return out
}

// featuresFor aligns the given components to the fitted slot schema by name
// so callers are not order-sensitive at serving time. Returns false when any
// fitted slot is missing.
func (s *StackedStrategy) featuresFor(components []PredictionComponent) ([]float64, bool) {
	byName := make(map[string]PredictionComponent, len(components))
	for _, c := range components {
		byName[c.Name] = c
	}
	features := make([]float64, 0, 2*len(s.slots))
	for _, slot := range s.slots {
		c, ok := byName[slot]
		if !ok {
			return nil, false
		}
		features = append(features, c.Score, c.Confidence)
	}
	return features, true
}

func stackedFeatures(example []PredictionComponent) []float64 {
	features := make([]float64, 0, 2*len(example))
	for _, c := range example {
		features = append(features, c.Score, c.Confidence)
	}
	return features
}
