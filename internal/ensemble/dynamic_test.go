package ensemble

import (
	"testing"
)

func TestDynamicUntrainedFallback(t *testing.T) {
	d := NewDynamic(DefaultConfig())

	pred, err := d.Predict(flatComponents(0.42))
	if err != nil {
		t.Fatalf("untrained predict failed: %v", err)
	}
	// Normalized weights sum to 1, so identical scores pass through exactly.
	if !near(pred.FinalScore, 0.42, 1e-12) {
		t.Errorf("untrained score = %v, want 0.42", pred.FinalScore)
	}
	if pred.Method != "dynamic" {
		t.Errorf("method = %q, want dynamic", pred.Method)
	}
	if _, ok := pred.Metadata["base_weights"]; ok {
		t.Error("untrained prediction must not report base weights")
	}
}

func TestDynamicConfidenceFloor(t *testing.T) {
	// Untrained, both base weights are the implicit 1.0. A zero-confidence
	// component keeps half its base weight (0.5) against the certain
	// component's 1.5, so after renormalization the split is 1/4 vs 3/4.
	d := NewDynamic(DefaultConfig())

	pred, err := d.Predict([]PredictionComponent{
		NewComponent("silent", 0.9, 0.0, ""),
		NewComponent("certain", 0.1, 1.0, ""),
	})
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	weights := pred.Metadata["dynamic_weights"].(map[string]float64)
	if !near(weights["silent"], 0.25, 1e-12) {
		t.Errorf("zero-confidence weight = %v, want 0.25", weights["silent"])
	}
	if weights["silent"] == 0 {
		t.Error("zero-confidence component must never vanish from the combination")
	}
	if !near(weights["certain"], 0.75, 1e-12) {
		t.Errorf("full-confidence weight = %v, want 0.75", weights["certain"])
	}
	if !near(pred.FinalScore, 0.9*0.25+0.1*0.75, 1e-12) {
		t.Errorf("score = %v, want the renormalized combination", pred.FinalScore)
	}
}

func TestDynamicFitDelegatesToBase(t *testing.T) {
	examples, targets := referenceCorpus()

	d := NewDynamic(DefaultConfig())
	requireTrained(t, d, examples, targets)

	pred, err := d.Predict(examples[0])
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	base, ok := pred.Metadata["base_weights"].(map[string]float64)
	if !ok || len(base) != 4 {
		t.Fatalf("base_weights metadata = %v, want the four learned slots", pred.Metadata["base_weights"])
	}
	for slot, w := range base {
		if w < 0 {
			t.Errorf("base weight for %s = %v, must be non-negative", slot, w)
		}
	}
}

func TestDynamicFitRejectsInvalidCorpus(t *testing.T) {
	d := NewDynamic(DefaultConfig())
	if err := d.Fit(nil, nil); err == nil {
		t.Error("expected fit error for empty corpus")
	}
	if d.IsTrained() {
		t.Error("strategy must not report trained after a failed fit")
	}
}

func TestDynamicScoreStaysInComponentEnvelope(t *testing.T) {
	// The combination is convex over the component scores, trained or not.
	examples, targets := referenceCorpus()

	d := NewDynamic(DefaultConfig())
	requireTrained(t, d, examples, targets)

	pred, err := d.Predict(examples[0])
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	lo, hi := examples[0][0].Score, examples[0][0].Score
	for _, c := range examples[0] {
		if c.Score < lo {
			lo = c.Score
		}
		if c.Score > hi {
			hi = c.Score
		}
	}
	if pred.FinalScore < lo-1e-9 || pred.FinalScore > hi+1e-9 {
		t.Errorf("score %v outside the component envelope [%v, %v]", pred.FinalScore, lo, hi)
	}
}

func TestDynamicConfidenceIsSelfConsistent(t *testing.T) {
	d := NewDynamic(DefaultConfig())

	components := []PredictionComponent{
		NewComponent("a", 0.3, 0.2, ""),
		NewComponent("b", 0.7, 0.8, ""),
	}
	pred, err := d.Predict(components)
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	weights := pred.Metadata["dynamic_weights"].(map[string]float64)
	want := 0.2*weights["a"] + 0.8*weights["b"]
	if !near(pred.Confidence, want, 1e-12) {
		t.Errorf("confidence = %v, want the same weighting as the score (%v)", pred.Confidence, want)
	}
}
