package ensemble

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// confidenceFloor keeps a zero-confidence component at half its statically
// learned weight instead of letting it vanish from the combination.
const confidenceFloor = 0.5

// DynamicStrategy wraps a ridge weighted strategy and rescales its learned
// per-slot weights at prediction time by each component's self-reported
// confidence. The static weights say how useful an opinion has historically
// been; the confidence rescaling says how sure that opinion is right now.
type DynamicStrategy struct {
	mu      sync.RWMutex
	base    *WeightedStrategy
	trained bool
}

// NewDynamic builds a dynamic strategy backed by a ridge weighted learner.
func NewDynamic(cfg Config) *DynamicStrategy {
	return &DynamicStrategy{base: NewWeighted(WeightedRidge, cfg)}
}

func (d *DynamicStrategy) Name() string { return "dynamic" }

func (d *DynamicStrategy) IsTrained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.trained
}

// Fit delegates entirely to the internal weighted strategy to obtain the
// static base weights.
func (d *DynamicStrategy) Fit(examples [][]PredictionComponent, targets []float64) error {
	if err := d.base.Fit(examples, targets); err != nil {
		return fmt.Errorf("dynamic: %w", err)
	}

	d.mu.Lock()
	d.trained = true
	d.mu.Unlock()

	log.Info().
		Interface("base_weights", d.base.WeightTable()).
		Msg("trained dynamic strategy")

	return nil
}

// Predict rescales each present component's base weight by
// (0.5 + confidence), renormalizes the active weights to sum to 1, and
// combines scores with them. The reported confidence is the same weighted
// average applied to the input confidences, so the strategy's certainty is
// self-consistent with how it weighted the opinions.
func (d *DynamicStrategy) Predict(components []PredictionComponent) (EnsemblePrediction, error) {
	if err := requireComponents(components); err != nil {
		return EnsemblePrediction{}, err
	}

	base := d.base.WeightTable() // nil when the base never trained

	dynamic := make(map[string]float64, len(components))
	var total float64
	for _, c := range components {
		baseWeight := 1.0
		if base != nil {
			if w, ok := base[c.Name]; ok {
				baseWeight = w
			}
		}
		w := baseWeight * (confidenceFloor + c.Confidence)
		dynamic[c.Name] = w
		total += w
	}
	if total > 0 {
		for name := range dynamic {
			dynamic[name] /= total
		}
	}

	var score, confidence float64
	for _, c := range components {
		score += c.Score * dynamic[c.Name]
		confidence += c.Confidence * dynamic[c.Name]
	}

	var b strings.Builder
	b.WriteString("dynamic weighting:")
	for _, c := range components {
		fmt.Fprintf(&b, " %s(%.2f)", c.Name, dynamic[c.Name])
	}

	metadata := map[string]any{"dynamic_weights": dynamic}
	if base != nil {
		metadata["base_weights"] = base
	}

	return newPrediction(d.Name(), score, confidence, components, b.String(), metadata), nil
}
