package metrics

// Wrapper adapts Metrics to the narrow interface the ensemble manager
// consumes, keeping the ensemble package free of a Prometheus dependency.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc() {
	w.m.PredictionsTotal.Inc()
}

func (w *Wrapper) TrainFailuresInc() {
	w.m.TrainFailuresTotal.Inc()
}

func (w *Wrapper) FallbackUseInc() {
	w.m.FallbackUseTotal.Inc()
}

func (w *Wrapper) LatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *Wrapper) ScoreObserve(score float64) {
	w.m.PredictionScores.Observe(score)
}
