package ensemble

import (
	"fmt"
	"math"
	"testing"
)

// referenceCorpus returns the two-instance karaoke corpus used across the
// strategy tests: four named opinion slots with ground-truth vote averages.
func referenceCorpus() ([][]PredictionComponent, []float64) {
	examples := [][]PredictionComponent{
		{
			NewComponent("theme_match", 0.8, 0.9, "Strong theme alignment"),
			NewComponent("audio_features", 0.6, 0.7, "Good energy match"),
			NewComponent("voter_preference", 0.7, 0.8, "Matches voter taste"),
			NewComponent("historical", 0.75, 0.6, "Fits group tendency"),
		},
		{
			NewComponent("theme_match", 0.6, 0.8, "Moderate theme fit"),
			NewComponent("audio_features", 0.8, 0.9, "Excellent audio match"),
			NewComponent("voter_preference", 0.5, 0.6, "Mixed voter appeal"),
			NewComponent("historical", 0.65, 0.7, "Reasonable group fit"),
		},
	}
	return examples, []float64{4.2, 3.1}
}

// identityCorpus is a degenerate single-slot corpus: score 1.0 always maps to
// target 1.0.
func identityCorpus(n int) ([][]PredictionComponent, []float64) {
	examples := make([][]PredictionComponent, n)
	targets := make([]float64, n)
	for i := range examples {
		examples[i] = []PredictionComponent{NewComponent("A", 1.0, 0.8, "")}
		targets[i] = 1.0
	}
	return examples, targets
}

// syntheticCorpus builds n two-slot examples where the target tracks slot
// "primary" linearly and slot "noise" is constant.
func syntheticCorpus(n int) ([][]PredictionComponent, []float64) {
	examples := make([][]PredictionComponent, n)
	targets := make([]float64, n)
	for i := range examples {
		score := 0.1 + 0.8*float64(i)/float64(n-1)
		examples[i] = []PredictionComponent{
			NewComponent("primary", score, 0.9, ""),
			NewComponent("noise", 0.5, 0.5, ""),
		}
		targets[i] = 5.0 * score
	}
	return examples, targets
}

func flatComponents(score float64) []PredictionComponent {
	return []PredictionComponent{
		NewComponent("a", score, 0.9, ""),
		NewComponent("b", score, 0.4, ""),
		NewComponent("c", score, 0.7, ""),
	}
}

func near(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// failingStrategy fails every Fit and Predict; used to exercise the voting
// and manager isolation paths.
type failingStrategy struct{ name string }

func (f *failingStrategy) Name() string { return f.name }

func (f *failingStrategy) Fit([][]PredictionComponent, []float64) error {
	return fmt.Errorf("%s: induced fit failure", f.name)
}

func (f *failingStrategy) Predict([]PredictionComponent) (EnsemblePrediction, error) {
	return EnsemblePrediction{}, fmt.Errorf("%s: induced predict failure", f.name)
}

func (f *failingStrategy) IsTrained() bool { return false }

// mockMetrics counts calls for assertion without touching Prometheus.
type mockMetrics struct {
	predictions   int
	trainFailures int
	fallbacks     int
	latencies     []float64
	scores        []float64
}

func (m *mockMetrics) PredictionsInc()            { m.predictions++ }
func (m *mockMetrics) TrainFailuresInc()          { m.trainFailures++ }
func (m *mockMetrics) FallbackUseInc()            { m.fallbacks++ }
func (m *mockMetrics) LatencyObserve(s float64)   { m.latencies = append(m.latencies, s) }
func (m *mockMetrics) ScoreObserve(score float64) { m.scores = append(m.scores, score) }

func requireTrained(t *testing.T, s Strategy, examples [][]PredictionComponent, targets []float64) {
	t.Helper()
	if err := s.Fit(examples, targets); err != nil {
		t.Fatalf("Fit(%s) failed: %v", s.Name(), err)
	}
	if !s.IsTrained() {
		t.Fatalf("strategy %s not marked trained after successful Fit", s.Name())
	}
}
