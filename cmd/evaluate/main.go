package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tunecast/internal/cfg"
	"tunecast/internal/corpus"
	"tunecast/internal/ensemble"
	"tunecast/internal/evaluate"
	"tunecast/internal/regress"
)

func main() {
	var (
		corpusPath = flag.String("corpus", "", "Path to corpus JSON file")
		corpusURL  = flag.String("url", "", "Corpus HTTP endpoint (used when -corpus is empty)")
		outputPath = flag.String("output", "evaluation", "Output directory for reports")
		minTrain   = flag.Int("min-train", 5, "Smallest training prefix for walk-forward folds")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	data, err := loadCorpus(*corpusPath, *corpusURL, c)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load corpus")
	}

	engineCfg := ensemble.Config{
		RidgeAlpha:   c.RidgeAlpha,
		CVFolds:      c.CVFolds,
		MinCVSamples: c.MinCVSamples,
		TargetRange:  c.TargetRange,
		Forest: regress.ForestConfig{
			Trees:    c.ForestTrees,
			MaxDepth: c.ForestMaxDepth,
			MinLeaf:  c.ForestMinLeaf,
			Seed:     c.ForestSeed,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	engine := evaluate.NewEngine(engineCfg, data, *minTrain)

	log.Info().Int("examples", len(data.Examples)).Msg("starting walk-forward evaluation")
	if err := engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}

	reporter := evaluate.NewReporter(engine.GetResults(), *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().Str("output", *outputPath).Msg("evaluation completed")
}

func loadCorpus(path, url string, c cfg.Settings) (*corpus.Corpus, error) {
	switch {
	case path != "":
		return corpus.LoadFile(path)
	case url != "":
		return corpus.FetchURL(url, c.FetchTimeout)
	case c.CorpusPath != "":
		return corpus.LoadFile(c.CorpusPath)
	case c.CorpusURL != "":
		return corpus.FetchURL(c.CorpusURL, c.FetchTimeout)
	}
	return nil, fmt.Errorf("no corpus given: pass -corpus or -url, or set CORPUS_PATH/CORPUS_URL")
}
