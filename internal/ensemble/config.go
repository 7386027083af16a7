package ensemble

import "tunecast/internal/regress"

// Config carries the tunable assumptions of the strategies. Zero values are
// replaced with the defaults at construction so a literal Config{} behaves
// like DefaultConfig().
type Config struct {
	// RidgeAlpha is the L2 penalty used by ridge-based strategies.
	RidgeAlpha float64
	// CVFolds is the number of folds for cross-validated error estimates.
	CVFolds int
	// MinCVSamples is the corpus size below which cross-validation is
	// unreliable and the in-sample training error is reported instead,
	// flagged as an optimistic approximation.
	MinCVSamples int
	// TargetRange is the assumed maximum plausible spread of target values.
	// The stacked strategy derives its confidence from trainRMSE/TargetRange.
	TargetRange float64
	// Forest configures the random-forest meta-learner.
	Forest regress.ForestConfig
}

// DefaultConfig returns the standard tuning: ridge alpha 1.0, 5-fold CV with
// a 5-sample floor, a target range of 5.0, and a 100-tree seeded forest.
func DefaultConfig() Config {
	return Config{
		RidgeAlpha:   1.0,
		CVFolds:      5,
		MinCVSamples: 5,
		TargetRange:  5.0,
		Forest:       regress.DefaultForestConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RidgeAlpha <= 0 {
		c.RidgeAlpha = d.RidgeAlpha
	}
	if c.CVFolds < 2 {
		c.CVFolds = d.CVFolds
	}
	if c.MinCVSamples <= 0 {
		c.MinCVSamples = d.MinCVSamples
	}
	if c.TargetRange <= 0 {
		c.TargetRange = d.TargetRange
	}
	if c.Forest.Trees <= 0 {
		c.Forest = d.Forest
	}
	return c
}
