package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/fieldproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Train.Epochs)
	assert.Equal(t, 32, cfg.Train.BatchSize)
	assert.InDelta(t, 0.001, cfg.Train.LearningRate, 1e-9)
	assert.Equal(t, "nadam", cfg.Train.Optimizer)
	assert.Equal(t, 60, cfg.Model.Timesteps)
	assert.Equal(t, []int{8, 16, 32}, cfg.Model.EncoderChannels)
	assert.InDelta(t, 0.5, cfg.Loss.MSEWeight, 1e-9)
	assert.Equal(t, 11, cfg.Loss.SSIMWindow)
	assert.InDelta(t, 0.25, cfg.Data.TestFraction, 1e-9)
	assert.Equal(t, int64(42), cfg.Data.SplitSeed)
}

func TestParse_LayersOverDefaults(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader(`
model:
  height: 32
  width: 48
  timesteps: 10
train:
  epochs: 3
  optimizer: adam
runtime:
  device: cpu
  log_format: json
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 32, cfg.Model.Height)
	assert.Equal(t, 48, cfg.Model.Width)
	assert.Equal(t, 10, cfg.Model.Proxy().Timesteps)
	assert.Equal(t, 3, cfg.Train.Epochs)
	assert.Equal(t, "adam", cfg.Train.Optimizer)
	assert.Equal(t, 32, cfg.Train.BatchSize, "unset keys keep defaults")
	assert.Equal(t, 64, cfg.Model.AttentionDim)
	assert.Equal(t, "json", cfg.Runtime.LogFormat)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := config.Parse(strings.NewReader("train:\n  epochz: 3\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no data source", func(c *config.Config) { c.Data.InputDir = "" }},
		{"negative synthetic", func(c *config.Config) { c.Data.Synthetic = -1 }},
		{"test fraction", func(c *config.Config) { c.Data.TestFraction = 1 }},
		{"image size", func(c *config.Config) { c.Model.Height = 30 }},
		{"heads", func(c *config.Config) { c.Model.NumHeads = 7 }},
		{"loss weights", func(c *config.Config) { c.Loss.MSEWeight, c.Loss.SSIMWeight = 0, 0 }},
		{"ssim window", func(c *config.Config) { c.Loss.SSIMWindow = 4 }},
		{"epochs", func(c *config.Config) { c.Train.Epochs = 0 }},
		{"batch size", func(c *config.Config) { c.Train.BatchSize = 0 }},
		{"learning rate", func(c *config.Config) { c.Train.LearningRate = 0 }},
		{"optimizer", func(c *config.Config) { c.Train.Optimizer = "rmsprop" }},
		{"train fraction", func(c *config.Config) { c.Train.TrainFraction = 1 }},
		{"non finite", func(c *config.Config) { c.Train.NonFinite = "ignore" }},
		{"device", func(c *config.Config) { c.Runtime.Device = "cuda" }},
		{"workers", func(c *config.Config) { c.Runtime.Workers = -2 }},
		{"log level", func(c *config.Config) { c.Runtime.LogLevel = "loud" }},
		{"log format", func(c *config.Config) { c.Runtime.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
		})
	}

	var nilCfg *config.Config
	assert.ErrorIs(t, nilCfg.Validate(), config.ErrInvalid)

	cfg := config.Default()
	cfg.Data.InputDir = ""
	cfg.Data.Synthetic = 16
	assert.NoError(t, cfg.Validate(), "synthetic data needs no directories")
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.ApplyOverrides(config.Overrides{
		Synthetic:    8,
		Epochs:       2,
		LearningRate: 0.01,
		Optimizer:    "sgd",
		Seed:         9,
		Device:       "cpu",
	})

	assert.Equal(t, 8, cfg.Data.Synthetic)
	assert.Equal(t, 2, cfg.Train.Epochs)
	assert.InDelta(t, 0.01, cfg.Train.LearningRate, 1e-9)
	assert.Equal(t, "sgd", cfg.Train.Optimizer)
	assert.Equal(t, int64(9), cfg.Train.Seed)
	assert.Equal(t, int64(9), cfg.Model.Seed)
	assert.Equal(t, "cpu", cfg.Runtime.Device)
	assert.Equal(t, 32, cfg.Train.BatchSize, "zero overrides are ignored")
	assert.InDelta(t, 0.5, cfg.Loss.SSIMWeight, 1e-9, "nil weights are ignored")
	require.NoError(t, cfg.Validate())
}

func TestApplyOverrides_ZeroWeight(t *testing.T) {
	one, zero := float32(1), float32(0)
	cfg := config.Default()
	cfg.ApplyOverrides(config.Overrides{MSEWeight: &one, SSIMWeight: &zero})

	assert.InDelta(t, 1, cfg.Loss.MSEWeight, 1e-9)
	assert.Zero(t, cfg.Loss.SSIMWeight)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  synthetic: 4\ntrain:\n  epochs: 1\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Data.Synthetic)
	assert.Equal(t, 1, cfg.Train.Epochs)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("train:\n  epochs: 0\n"), 0o600))
	_, err = config.Load(bad)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshal_ParsesBack(t *testing.T) {
	cfg := config.Default()
	cfg.Train.Epochs = 7
	raw, err := cfg.Marshal()
	require.NoError(t, err)

	back, err := config.Parse(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
