package storage

import (
	"testing"
	"time"

	"tunecast/internal/ensemble"
)

func testPrediction(method string, score float64) ensemble.EnsemblePrediction {
	return ensemble.EnsemblePrediction{
		FinalScore: score,
		Confidence: 0.8,
		Method:     method,
		Reasoning:  "test",
		Components: []ensemble.PredictionComponent{
			ensemble.NewComponent("theme_match", 0.8, 0.9, ""),
		},
	}
}

func TestStoreAndRetrievePredictions(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()

	start := time.Now().Add(-time.Minute)

	for _, score := range []float64{3.5, 3.8, 4.1} {
		if err := store.StorePrediction(testPrediction("voting", score)); err != nil {
			t.Fatalf("StorePrediction failed: %v", err)
		}
	}
	if err := store.StorePrediction(testPrediction("dynamic", 0.7)); err != nil {
		t.Fatalf("StorePrediction failed: %v", err)
	}

	end := time.Now().Add(time.Minute)

	records, err := store.GetPredictions("voting", start, end)
	if err != nil {
		t.Fatalf("GetPredictions failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d voting records, want 3", len(records))
	}
	for _, r := range records {
		if r.Method != "voting" {
			t.Errorf("record method = %q, want voting", r.Method)
		}
		if len(r.Components) != 1 {
			t.Errorf("record lost its components: %v", r.Components)
		}
	}

	dynamic, err := store.GetPredictions("dynamic", start, end)
	if err != nil {
		t.Fatalf("GetPredictions failed: %v", err)
	}
	if len(dynamic) != 1 || dynamic[0].FinalScore != 0.7 {
		t.Errorf("dynamic records = %+v, want the single 0.7 prediction", dynamic)
	}
}

func TestGetPredictionsHonorsTimeRange(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()

	if err := store.StorePrediction(testPrediction("voting", 4.0)); err != nil {
		t.Fatalf("StorePrediction failed: %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	records, err := store.GetPredictions("voting", past.Add(-time.Hour), past)
	if err != nil {
		t.Fatalf("GetPredictions failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records outside the queried range, want 0", len(records))
	}
}

func TestGetPredictionsUnknownMethod(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer store.Close()

	if err := store.StorePrediction(testPrediction("voting", 4.0)); err != nil {
		t.Fatalf("StorePrediction failed: %v", err)
	}

	records, err := store.GetPredictions("stacked_rf", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("GetPredictions failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records for an unused method, want 0", len(records))
	}
}

func TestNewFailsOnBadPath(t *testing.T) {
	if _, err := New("/nonexistent/path/that/cannot/be/created"); err == nil {
		t.Error("expected error for an unwritable data path")
	}
}

func TestCloseIsIdempotentOnNilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close on empty store failed: %v", err)
	}
}
