// Package config loads and validates run configurations. Every field
// is checked eagerly so a bad config fails before any data loads.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/sentivox/go-emotion/dataset"
	"github.com/sentivox/go-emotion/model"
)

// ErrConfiguration marks an invalid or incomplete run configuration.
var ErrConfiguration = errors.New("configuration error")

// Paths locates the asset directories. Environment variables override
// the defaults.
type Paths struct {
	DataRoot  string
	ModelRoot string
	LogsRoot  string
}

// Config is one training or evaluation run.
type Config struct {
	SimulationName string
	NumEpochs      int
	Model          string
	ModelArch      string

	Dataset        string
	AudioSize      int
	UseSpectrogram bool

	TrainTestSplitSize float64
	// TrainTestSplitSeed nil means the split draws fresh entropy.
	TrainTestSplitSeed *int64

	NumWorkers        int
	TrainingBatchSize int
	TestingBatchSize  int

	LearningRate           float64
	PretrainedEncoderPath  string
	PretrainedBackbonePath string
	HardwareConfigFile     string

	Paths Paths
}

func defaultPaths() Paths {
	p := Paths{
		DataRoot:  "Assets/Data",
		ModelRoot: "Assets/Models",
		LogsRoot:  "Assets/Logs",
	}
	if v := os.Getenv("EMOTION_DATA_ROOT"); v != "" {
		p.DataRoot = v
	}
	if v := os.Getenv("EMOTION_MODEL_ROOT"); v != "" {
		p.ModelRoot = v
	}
	if v := os.Getenv("EMOTION_LOGS_ROOT"); v != "" {
		p.LogsRoot = v
	}
	return p
}

// Load reads a JSON or YAML run config and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("learning_rate", 1e-3)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrConfiguration, path, err)
	}

	cfg := &Config{
		SimulationName:         v.GetString("simulation_name"),
		Model:                  v.GetString("model"),
		ModelArch:              v.GetString("model_arch"),
		Dataset:                v.GetString("dataset"),
		AudioSize:              v.GetInt("audio_size"),
		UseSpectrogram:         v.GetBool("use_spectrogram"),
		TrainTestSplitSize:     v.GetFloat64("train_test_split_size"),
		NumWorkers:             v.GetInt("num_workers"),
		TrainingBatchSize:      v.GetInt("training_batches"),
		TestingBatchSize:       v.GetInt("testing_batches"),
		LearningRate:           v.GetFloat64("learning_rate"),
		PretrainedEncoderPath:  v.GetString("pretrained_encoder"),
		PretrainedBackbonePath: v.GetString("pretrained_backbone"),
		HardwareConfigFile:     v.GetString("server_config"),
		Paths:                  defaultPaths(),
	}

	// The original configs spell it "num_epoches"; accept both.
	cfg.NumEpochs = v.GetInt("num_epoches")
	if cfg.NumEpochs == 0 {
		cfg.NumEpochs = v.GetInt("num_epochs")
	}

	if v.IsSet("train_test_split_seed") && v.Get("train_test_split_seed") != nil {
		seed := v.GetInt64("train_test_split_seed")
		cfg.TrainTestSplitSeed = &seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field, including model and dataset name lookup.
func (c *Config) Validate() error {
	if c.SimulationName == "" {
		return fmt.Errorf("%w: simulation_name is required", ErrConfiguration)
	}
	if c.NumEpochs < 1 {
		return fmt.Errorf("%w: num_epoches must be at least 1, got %d", ErrConfiguration, c.NumEpochs)
	}
	if c.AudioSize < 1 {
		return fmt.Errorf("%w: audio_size must be positive, got %d", ErrConfiguration, c.AudioSize)
	}
	if c.TrainTestSplitSize <= 0 || c.TrainTestSplitSize >= 1 {
		return fmt.Errorf("%w: train_test_split_size must be in (0, 1), got %v", ErrConfiguration, c.TrainTestSplitSize)
	}
	if c.TrainingBatchSize < 1 || c.TestingBatchSize < 1 {
		return fmt.Errorf("%w: batch sizes must be at least 1, got %d and %d", ErrConfiguration, c.TrainingBatchSize, c.TestingBatchSize)
	}
	if c.NumWorkers < 0 {
		return fmt.Errorf("%w: num_workers cannot be negative, got %d", ErrConfiguration, c.NumWorkers)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate must be positive, got %v", ErrConfiguration, c.LearningRate)
	}

	if !contains(model.Known(), strings.ToLower(c.Model)) {
		return fmt.Errorf("%w: unknown model %q (known: %s)", ErrConfiguration, c.Model, strings.Join(model.Known(), ", "))
	}
	if strings.EqualFold(c.Model, "wav2vec") && !contains(model.KnownWav2VecArchs(), strings.ToLower(c.ModelArch)) {
		return fmt.Errorf("%w: unknown wav2vec arch %q (known: %s)", ErrConfiguration, c.ModelArch, strings.Join(model.KnownWav2VecArchs(), ", "))
	}
	if !contains(dataset.Known(), strings.ToLower(c.Dataset)) {
		return fmt.Errorf("%w: unknown dataset %q (known: %s)", ErrConfiguration, c.Dataset, strings.Join(dataset.Known(), ", "))
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
