package ensemble

import "math"

// PredictionComponent is one named sub-predictor's scored judgment for a
// single candidate item. The name is the slot identity that aligns the same
// sub-predictor across training examples and serving-time calls; it must be
// stable for learned per-slot weights to mean anything.
//
// Components are value objects: created fresh per request by upstream
// producers and never mutated by the engine.
type PredictionComponent struct {
	Name       string         `json:"name"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewComponent builds a component with the confidence clamped into [0, 1].
// Scores are caller-scaled (conventionally 0-1) and passed through as-is.
func NewComponent(name string, score, confidence float64, reasoning string) PredictionComponent {
	return PredictionComponent{
		Name:       name,
		Score:      score,
		Confidence: clamp(confidence, 0, 1),
		Reasoning:  reasoning,
	}
}

// EnsemblePrediction is the calibrated output of one Predict call. The input
// components are retained verbatim for audit and explainability; Metadata
// carries strategy-specific diagnostics such as the learned weight table.
type EnsemblePrediction struct {
	FinalScore float64               `json:"final_score"`
	Confidence float64               `json:"confidence"`
	Components []PredictionComponent `json:"components"`
	Method     string                `json:"ensemble_method"`
	Reasoning  string                `json:"reasoning"`
	Metadata   map[string]any        `json:"metadata,omitempty"`
}

func newPrediction(method string, score, confidence float64, components []PredictionComponent, reasoning string, metadata map[string]any) EnsemblePrediction {
	return EnsemblePrediction{
		FinalScore: score,
		Confidence: clamp(confidence, 0, 1),
		Components: components,
		Method:     method,
		Reasoning:  reasoning,
		Metadata:   metadata,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func componentScores(components []PredictionComponent) []float64 {
	scores := make([]float64, len(components))
	for i, c := range components {
		scores[i] = c.Score
	}
	return scores
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var s float64
	for _, v := range values {
		s += v
	}
	return s / float64(len(values))
}

func popStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	var s float64
	for _, v := range values {
		d := v - mean
		s += d * d
	}
	return math.Sqrt(s / float64(len(values)))
}
