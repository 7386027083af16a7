// Package cfg loads and validates runtime configuration for the prediction
// engine. Configuration comes from a YAML file selected by CONFIG_FILE,
// falling back to environment variables; individual env vars always override
// file values.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	// Ensemble tuning
	RidgeAlpha   float64
	CVFolds      int
	MinCVSamples int
	TargetRange  float64

	// Forest meta-learner
	ForestTrees    int
	ForestMaxDepth int
	ForestMinLeaf  int
	ForestSeed     int64

	// System
	HTTPPort     int
	DataPath     string
	CorpusPath   string
	CorpusURL    string
	FetchTimeout time.Duration
	TrainTimeout time.Duration
}

type ConfigFile struct {
	Ensemble struct {
		RidgeAlpha   float64 `yaml:"ridgeAlpha"`
		CVFolds      int     `yaml:"cvFolds"`
		MinCVSamples int     `yaml:"minCVSamples"`
		TargetRange  float64 `yaml:"targetRange"`
	} `yaml:"ensemble"`

	Forest struct {
		Trees    int   `yaml:"trees"`
		MaxDepth int   `yaml:"maxDepth"`
		MinLeaf  int   `yaml:"minLeaf"`
		Seed     int64 `yaml:"seed"`
	} `yaml:"forest"`

	System struct {
		HTTPPort     int    `yaml:"httpPort"`
		DataPath     string `yaml:"dataPath"`
		CorpusPath   string `yaml:"corpusPath"`
		CorpusURL    string `yaml:"corpusURL"`
		FetchTimeout string `yaml:"fetchTimeout"`
		TrainTimeout string `yaml:"trainTimeout"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(config.System.FetchTimeout)
	if err != nil {
		fetchTimeout = 10 * time.Second
	}
	trainTimeout, err := time.ParseDuration(config.System.TrainTimeout)
	if err != nil {
		trainTimeout = 2 * time.Minute
	}

	settings := Settings{
		RidgeAlpha:     getFloatFromEnvOrConfig("RIDGE_ALPHA", config.Ensemble.RidgeAlpha, 1.0),
		CVFolds:        getIntFromEnvOrConfig("CV_FOLDS", config.Ensemble.CVFolds, 5),
		MinCVSamples:   getIntFromEnvOrConfig("MIN_CV_SAMPLES", config.Ensemble.MinCVSamples, 5),
		TargetRange:    getFloatFromEnvOrConfig("TARGET_RANGE", config.Ensemble.TargetRange, 5.0),
		ForestTrees:    getIntFromEnvOrConfig("FOREST_TREES", config.Forest.Trees, 100),
		ForestMaxDepth: getIntFromEnvOrConfig("FOREST_MAX_DEPTH", config.Forest.MaxDepth, 0),
		ForestMinLeaf:  getIntFromEnvOrConfig("FOREST_MIN_LEAF", config.Forest.MinLeaf, 1),
		ForestSeed:     int64(getIntFromEnvOrConfig("FOREST_SEED", int(config.Forest.Seed), 42)),
		HTTPPort:       getIntFromEnvOrConfig("HTTP_PORT", config.System.HTTPPort, 8090),
		DataPath:       getEnvOrDefault("DATA_PATH", config.System.DataPath),
		CorpusPath:     getEnvOrDefault("CORPUS_PATH", config.System.CorpusPath),
		CorpusURL:      getEnvOrDefault("CORPUS_URL", config.System.CorpusURL),
		FetchTimeout:   fetchTimeout,
		TrainTimeout:   trainTimeout,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		RidgeAlpha:     getFloatOrDefault("RIDGE_ALPHA", 1.0),
		CVFolds:        getIntOrDefault("CV_FOLDS", 5),
		MinCVSamples:   getIntOrDefault("MIN_CV_SAMPLES", 5),
		TargetRange:    getFloatOrDefault("TARGET_RANGE", 5.0),
		ForestTrees:    getIntOrDefault("FOREST_TREES", 100),
		ForestMaxDepth: getIntOrDefault("FOREST_MAX_DEPTH", 0),
		ForestMinLeaf:  getIntOrDefault("FOREST_MIN_LEAF", 1),
		ForestSeed:     int64(getIntOrDefault("FOREST_SEED", 42)),
		HTTPPort:       getIntOrDefault("HTTP_PORT", 8090),
		DataPath:       os.Getenv("DATA_PATH"), // optional
		CorpusPath:     os.Getenv("CORPUS_PATH"),
		CorpusURL:      os.Getenv("CORPUS_URL"),
		FetchTimeout:   getDurationOrDefault("FETCH_TIMEOUT", 10*time.Second),
		TrainTimeout:   getDurationOrDefault("TRAIN_TIMEOUT", 2*time.Minute),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values.
func validateSettings(settings *Settings) error {
	if settings.RidgeAlpha < 0 || settings.RidgeAlpha > 100 {
		return fmt.Errorf("ridge alpha must be between 0 and 100, got %f", settings.RidgeAlpha)
	}
	if settings.CVFolds < 2 || settings.CVFolds > 20 {
		return fmt.Errorf("CV folds must be between 2 and 20, got %d", settings.CVFolds)
	}
	if settings.MinCVSamples < settings.CVFolds {
		return fmt.Errorf("min CV samples must be at least the fold count %d, got %d", settings.CVFolds, settings.MinCVSamples)
	}
	if settings.TargetRange <= 0 || settings.TargetRange > 1000 {
		return fmt.Errorf("target range must be between 0 and 1000, got %f", settings.TargetRange)
	}
	if settings.ForestTrees <= 0 || settings.ForestTrees > 10000 {
		return fmt.Errorf("forest trees must be between 1 and 10000, got %d", settings.ForestTrees)
	}
	if settings.ForestMaxDepth < 0 || settings.ForestMaxDepth > 100 {
		return fmt.Errorf("forest max depth must be between 0 and 100, got %d", settings.ForestMaxDepth)
	}
	if settings.ForestMinLeaf < 1 || settings.ForestMinLeaf > 1000 {
		return fmt.Errorf("forest min leaf must be between 1 and 1000, got %d", settings.ForestMinLeaf)
	}
	if settings.HTTPPort < 1024 || settings.HTTPPort > 65535 {
		return fmt.Errorf("HTTP port must be between 1024 and 65535, got %d", settings.HTTPPort)
	}
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 1m, got %v", settings.FetchTimeout)
	}
	if settings.TrainTimeout < time.Second || settings.TrainTimeout > time.Hour {
		return fmt.Errorf("train timeout must be between 1s and 1h, got %v", settings.TrainTimeout)
	}
	return nil
}
