package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Reporter writes evaluation results as a text summary, a per-fold CSV log,
// and a machine-readable JSON report.
type Reporter struct {
	results    *Results
	outputPath string
}

func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{results: results, outputPath: outputPath}
}

// GenerateReport writes all report formats into the output directory.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateFoldLog(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "evaluation_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "WALK-FORWARD EVALUATION SUMMARY\n")
	fmt.Fprintf(file, "===============================\n\n")
	fmt.Fprintf(file, "Examples: %d (first %d reserved for training)\n", r.results.Examples, r.results.MinTrain)
	fmt.Fprintf(file, "Folds: %d\n", len(r.results.Folds))
	fmt.Fprintf(file, "Elapsed: %s\n\n", r.results.EndTime.Sub(r.results.StartTime))

	fmt.Fprintf(file, "OUT-OF-SAMPLE ERRORS\n")
	fmt.Fprintf(file, "--------------------\n")
	for _, s := range r.sortedStrategies() {
		fmt.Fprintf(file, "%-16s RMSE %.4f  MAE %.4f  selected best %d/%d\n",
			s.Name, s.RMSE, s.MAE, s.SelectedAs, s.Evaluations)
	}

	log.Info().Str("file", summaryPath).Msg("summary report generated")
	return nil
}

func (r *Reporter) generateFoldLog() error {
	csvPath := filepath.Join(r.outputPath, "fold_log.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create fold log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	names := make([]string, 0, len(r.results.Strategies))
	for _, s := range r.results.Strategies {
		names = append(names, s.Name)
	}

	header := append([]string{"fold", "train_size", "target", "best"}, names...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write fold log header: %w", err)
	}

	for _, fold := range r.results.Folds {
		row := []string{
			strconv.Itoa(fold.Index),
			strconv.Itoa(fold.TrainSize),
			strconv.FormatFloat(fold.Target, 'f', 4, 64),
			fold.Best,
		}
		for _, name := range names {
			row = append(row, strconv.FormatFloat(fold.Predictions[name], 'f', 4, 64))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write fold row: %w", err)
		}
	}

	log.Info().Str("file", csvPath).Msg("fold log generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "evaluation.json")
	file, err := os.Create(jsonPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON report: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.results); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary writes the scorecard to stdout.
func (r *Reporter) PrintSummary() {
	fmt.Println("\n=== Walk-Forward Evaluation ===")
	fmt.Printf("Folds: %d over %d examples\n\n", len(r.results.Folds), r.results.Examples)
	for _, s := range r.sortedStrategies() {
		fmt.Printf("%-16s RMSE %.4f  MAE %.4f  selected best %d/%d\n",
			s.Name, s.RMSE, s.MAE, s.SelectedAs, s.Evaluations)
	}
	fmt.Println("===============================")
}

func (r *Reporter) sortedStrategies() []StrategyResult {
	out := make([]StrategyResult, len(r.results.Strategies))
	copy(out, r.results.Strategies)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RMSE < out[j].RMSE
	})
	return out
}
