// Package ensemble combines several independently scored opinions about a
// candidate item into one calibrated prediction. It provides the strategy
// implementations (weighted, stacked, dynamic, voting), the manager that
// trains and ranks them, and the HTTP serving surface.
//
// All learned state is in-memory and strategy-instance-scoped: there is no
// save/load lifecycle, and every retraining starts from a blank slate.
package ensemble

import (
	"fmt"
)

// Confidence bounds shared by every strategy. Trained confidences are kept
// away from the extremes; untrained fallbacks always report 0.5.
const (
	minConfidence       = 0.1
	maxConfidence       = 0.95
	untrainedConfidence = 0.5
)

// Strategy is the contract every ensemble algorithm implements.
//
// Fit returns an error only for structurally invalid input (empty corpus,
// mismatched lengths, inconsistent slot naming); it never silently no-ops.
// Predict must succeed for any non-empty component list whether or not Fit
// has been called: untrained strategies fall back to a defined simple
// average at confidence 0.5.
type Strategy interface {
	Name() string
	Fit(examples [][]PredictionComponent, targets []float64) error
	Predict(components []PredictionComponent) (EnsemblePrediction, error)
	IsTrained() bool
}

// validateCorpus enforces the structural invariants of a training corpus:
// non-empty, one target per example, no empty examples, and a consistent
// slot schema (same names, same order) across every example.
func validateCorpus(examples [][]PredictionComponent, targets []float64) error {
	if len(examples) == 0 || len(targets) == 0 {
		return fmt.Errorf("need training data to fit ensemble")
	}
	if len(examples) != len(targets) {
		return fmt.Errorf("got %d training examples but %d targets", len(examples), len(targets))
	}
	schema := make([]string, len(examples[0]))
	for i, c := range examples[0] {
		schema[i] = c.Name
	}
	if len(schema) == 0 {
		return fmt.Errorf("training example 0 has no components")
	}
	for i, example := range examples {
		if len(example) != len(schema) {
			return fmt.Errorf("training example %d has %d components, expected %d", i, len(example), len(schema))
		}
		for j, c := range example {
			if c.Name != schema[j] {
				return fmt.Errorf("training example %d slot %d is %q, expected %q", i, j, c.Name, schema[j])
			}
		}
	}
	return nil
}

func slotNames(example []PredictionComponent) []string {
	names := make([]string, len(example))
	for i, c := range example {
		names[i] = c.Name
	}
	return names
}

// simpleAverage is the shared untrained fallback: an unweighted mean of the
// component scores at fixed confidence 0.5.
func simpleAverage(method string, components []PredictionComponent, reasoning string) EnsemblePrediction {
	return newPrediction(method, meanOf(componentScores(components)), untrainedConfidence, components, reasoning, nil)
}

func requireComponents(components []PredictionComponent) error {
	if len(components) == 0 {
		return fmt.Errorf("no components to predict from")
	}
	return nil
}
