package evaluate

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"tunecast/internal/corpus"
	"tunecast/internal/ensemble"
)

func linearCorpus(n int) *corpus.Corpus {
	c := &corpus.Corpus{}
	for i := 0; i < n; i++ {
		score := 0.1 + 0.8*float64(i)/float64(n-1)
		c.Examples = append(c.Examples, []ensemble.PredictionComponent{
			ensemble.NewComponent("primary", score, 0.9, ""),
			ensemble.NewComponent("noise", 0.5, 0.5, ""),
		})
		c.Targets = append(c.Targets, 5.0*score)
	}
	return c
}

func TestEngineRunWalkForward(t *testing.T) {
	data := linearCorpus(12)
	e := NewEngine(ensemble.DefaultConfig(), data, 5)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	results := e.GetResults()
	if results == nil {
		t.Fatal("no results after successful run")
	}
	if len(results.Folds) != 7 {
		t.Errorf("got %d folds, want 7 (examples 5..11)", len(results.Folds))
	}
	if len(results.Strategies) != 6 {
		t.Errorf("got %d strategy results, want 6", len(results.Strategies))
	}

	byName := make(map[string]StrategyResult)
	for _, s := range results.Strategies {
		if s.Evaluations != len(results.Folds) {
			t.Errorf("%s evaluated %d times, want %d", s.Name, s.Evaluations, len(results.Folds))
		}
		if math.IsNaN(s.RMSE) {
			t.Errorf("%s RMSE is NaN", s.Name)
		}
		byName[s.Name] = s
	}

	// Clean linear data: the weighted strategies track the target closely
	// out-of-sample.
	if r := byName["weighted_linear"].RMSE; r > 0.5 {
		t.Errorf("weighted_linear out-of-sample RMSE = %v, want < 0.5 on clean linear data", r)
	}

	// Every fold carries a prediction per strategy and a selected best.
	for _, fold := range results.Folds {
		if fold.Best == "" {
			t.Errorf("fold %d selected no best strategy", fold.Index)
		}
		if len(fold.Predictions) != 6 {
			t.Errorf("fold %d has %d predictions, want 6", fold.Index, len(fold.Predictions))
		}
	}
}

func TestEngineRejectsSmallCorpus(t *testing.T) {
	e := NewEngine(ensemble.DefaultConfig(), linearCorpus(5), 5)
	if err := e.Run(context.Background()); err == nil {
		t.Error("expected error for a corpus with no scorable examples")
	}
	if e.GetResults() != nil {
		t.Error("failed run must not publish results")
	}
}

func TestEngineHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(ensemble.DefaultConfig(), linearCorpus(12), 5)
	if err := e.Run(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestReporterWritesAllFormats(t *testing.T) {
	data := linearCorpus(10)
	e := NewEngine(ensemble.DefaultConfig(), data, 6)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "reports")
	r := NewReporter(e.GetResults(), dir)
	if err := r.GenerateReport(); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	for _, name := range []string{"evaluation_summary.txt", "fold_log.csv", "evaluation.json"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("report %s missing: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("report %s is empty", name)
		}
	}
}
