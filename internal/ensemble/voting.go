package ensemble

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// VotingStrategy aggregates the outputs of several member strategies instead
// of combining raw components directly. Its defining behavior is failure
// isolation: a member that fails to fit is logged and excluded from every
// subsequent vote, and a member that fails a single predict is excluded from
// that vote only — the overall call still succeeds.
type VotingStrategy struct {
	mu      sync.RWMutex
	members []Strategy
	failed  map[string]bool
	trained bool
}

// NewVoting builds a voting strategy over the given members, defaulting to a
// ridge weighted, a forest stacked, and a dynamic strategy.
func NewVoting(cfg Config, members ...Strategy) *VotingStrategy {
	if len(members) == 0 {
		members = []Strategy{
			NewWeighted(WeightedRidge, cfg),
			NewStacked(MetaForest, cfg),
			NewDynamic(cfg),
		}
	}
	return &VotingStrategy{members: members, failed: make(map[string]bool)}
}

func (v *VotingStrategy) Name() string { return "voting" }

func (v *VotingStrategy) IsTrained() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.trained
}

// Fit trains every member independently. Member failures do not abort the
// fit: the failing member is recorded and the rest keep training. Only a
// structurally invalid corpus fails the call itself.
func (v *VotingStrategy) Fit(examples [][]PredictionComponent, targets []float64) error {
	if err := validateCorpus(examples, targets); err != nil {
		return fmt.Errorf("voting: %w", err)
	}

	failed := make(map[string]bool)
	for _, member := range v.members {
		if err := safeFit(member, examples, targets); err != nil {
			log.Warn().Err(err).Str("member", member.Name()).Msg("voting member failed to fit, excluding from votes")
			failed[member.Name()] = true
			continue
		}
		log.Info().Str("member", member.Name()).Msg("voting member trained")
	}

	v.mu.Lock()
	v.failed = failed
	v.trained = true
	v.mu.Unlock()

	return nil
}

// Predict queries every surviving member and averages their final scores
// weighted by each member's own reported confidence. Degradation ladder:
// zero total confidence weight falls back to an unweighted mean of member
// scores; zero member predictions falls back to an unweighted mean of the
// raw component scores at confidence 0.5.
func (v *VotingStrategy) Predict(components []PredictionComponent) (EnsemblePrediction, error) {
	if err := requireComponents(components); err != nil {
		return EnsemblePrediction{}, err
	}

	v.mu.RLock()
	failed := v.failed
	v.mu.RUnlock()

	votes := make([]EnsemblePrediction, 0, len(v.members))
	for _, member := range v.members {
		if failed[member.Name()] {
			continue
		}
		pred, err := safePredict(member, components)
		if err != nil {
			log.Warn().Err(err).Str("member", member.Name()).Msg("voting member failed to predict, excluding from this vote")
			continue
		}
		votes = append(votes, pred)
	}

	if len(votes) == 0 {
		return simpleAverage(v.Name(), components, "voting ensemble failed - using simple average"), nil
	}

	var weightedScore, totalWeight float64
	for _, vote := range votes {
		weightedScore += vote.FinalScore * vote.Confidence
		totalWeight += vote.Confidence
	}

	var score, confidence float64
	if totalWeight > 0 {
		score = weightedScore / totalWeight
		confidence = totalWeight / float64(len(votes))
	} else {
		memberScores := make([]float64, len(votes))
		for i, vote := range votes {
			memberScores[i] = vote.FinalScore
		}
		score = meanOf(memberScores)
		confidence = untrainedConfidence
	}

	memberResults := make(map[string]any, len(votes))
	for _, vote := range votes {
		memberResults[vote.Method] = map[string]float64{
			"score":      vote.FinalScore,
			"confidence": vote.Confidence,
		}
	}

	reasoning := fmt.Sprintf("voting ensemble (%d models)", len(votes))
	return newPrediction(v.Name(), score, confidence, components, reasoning, map[string]any{"member_predictions": memberResults}), nil
}

// safeFit converts a member panic into an error so one misbehaving member
// cannot take down the whole vote.
func safeFit(s Strategy, examples [][]PredictionComponent, targets []float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: fit panicked: %v", s.Name(), r)
		}
	}()
	return s.Fit(examples, targets)
}

func safePredict(s Strategy, components []PredictionComponent) (pred EnsemblePrediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: predict panicked: %v", s.Name(), r)
		}
	}()
	return s.Predict(components)
}
