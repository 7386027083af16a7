package main

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"tunecast/internal/cfg"
	"tunecast/internal/corpus"
	"tunecast/internal/ensemble"
	"tunecast/internal/metrics"
	"tunecast/internal/regress"
	"tunecast/internal/storage"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	manager := ensemble.NewManagerWithMetrics(ensembleConfig(c), mw)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	if err := trainFromCorpus(ctx, c, m, manager); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}

	server := ensemble.NewServer(manager, historyWriter(store), promhttp.Handler(), c.HTTPPort)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("prediction server stopped")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

func ensembleConfig(c cfg.Settings) ensemble.Config {
	return ensemble.Config{
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
}

func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		log.Info().Msg("no data path configured, prediction history disabled")
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Str("data_path", c.DataPath).Msg("failed to open history store, continuing without it")
		return nil
	}
	return store
}

// historyWriter keeps the typed-nil pitfall out of the server: a nil *Store
// must become a nil interface.
func historyWriter(store *storage.Store) ensemble.HistoryWriter {
	if store == nil {
		return nil
	}
	return store
}

func trainFromCorpus(ctx context.Context, c cfg.Settings, m *metrics.Metrics, manager *ensemble.Manager) error {
	var (
		data *corpus.Corpus
		err  error
	)
	switch {
	case c.CorpusPath != "":
		data, err = corpus.LoadFile(c.CorpusPath)
	case c.CorpusURL != "":
		data, err = corpus.FetchURL(c.CorpusURL, c.FetchTimeout)
	default:
		log.Warn().Msg("no training corpus configured, serving untrained with voting fallback")
		return nil
	}
	if err != nil {
		return err
	}

	trainCtx, cancel := context.WithTimeout(ctx, c.TrainTimeout)
	defer cancel()

	start := time.Now()
	if err := manager.TrainAll(trainCtx, data.Examples, data.Targets); err != nil {
		return err
	}
	m.TrainingDuration.Observe(time.Since(start).Seconds())

	trained := 0
	for _, r := range manager.Rankings() {
		if !math.IsInf(r.RMSE, 1) {
			trained++
		}
	}
	m.StrategiesTrained.Set(float64(trained))

	log.Info().
		Int("examples", len(data.Examples)).
		Str("best", manager.Best()).
		Msg("training complete")

	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutdown signal received")
		cancel()
	case <-ctx.Done():
	}
}
