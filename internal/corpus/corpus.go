// Package corpus loads training corpora for the prediction engine. A corpus
// is a JSON document pairing prediction instances (each an ordered list of
// named components) with their scalar ground-truth targets, produced by the
// external opinion pipeline. It can be read from a local file or fetched
// from an HTTP endpoint.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"tunecast/internal/ensemble"
)

// Corpus is a training set: one target per example.
type Corpus struct {
	Examples [][]ensemble.PredictionComponent `json:"examples"`
	Targets  []float64                        `json:"targets"`
}

// Validate checks the structural invariants the strategies rely on.
func (c *Corpus) Validate() error {
	if len(c.Examples) == 0 {
		return fmt.Errorf("corpus has no examples")
	}
	if len(c.Examples) != len(c.Targets) {
		return fmt.Errorf("corpus has %d examples but %d targets", len(c.Examples), len(c.Targets))
	}
	for i, example := range c.Examples {
		if len(example) == 0 {
			return fmt.Errorf("corpus example %d has no components", i)
		}
	}
	return nil
}

// LoadFile reads and validates a corpus from a local JSON file.
func LoadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file %s: %w", path, err)
	}
	return parse(data)
}

// FetchURL retrieves and validates a corpus from an HTTP endpoint. Retry
// policy beyond resty's defaults is the caller's concern.
func FetchURL(url string, timeout time.Duration) (*Corpus, error) {
	client := resty.New().SetTimeout(timeout)

	resp, err := client.R().Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch corpus from %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch corpus from %s: status %s", url, resp.Status())
	}

	log.Info().Str("url", url).Int("bytes", len(resp.Body())).Msg("fetched training corpus")
	return parse(resp.Body())
}

func parse(data []byte) (*Corpus, error) {
	var c Corpus
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Producers outside this process are not obliged to clamp confidences.
	for i := range c.Examples {
		for j := range c.Examples[i] {
			comp := &c.Examples[i][j]
			if comp.Confidence < 0 {
				comp.Confidence = 0
			} else if comp.Confidence > 1 {
				comp.Confidence = 1
			}
		}
	}

	return &c, nil
}
