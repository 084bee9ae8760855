// Package config loads the run configuration: a YAML file layered over
// defaults, then command-line overrides, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/fieldproxy/internal/loss"
	"github.com/born-ml/fieldproxy/internal/optim"
	"github.com/born-ml/fieldproxy/internal/proxy"
)

// ErrInvalid reports a configuration that cannot drive a run.
var ErrInvalid = errors.New("invalid config")

// Config captures every knob of a training run.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Model   ModelConfig   `yaml:"model"`
	Loss    LossConfig    `yaml:"loss"`
	Train   TrainConfig   `yaml:"train"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// DataConfig selects the samples.
type DataConfig struct {
	InputDir      string  `yaml:"input_dir"`
	TargetDir     string  `yaml:"target_dir"`
	Synthetic     int     `yaml:"synthetic"` // generate this many samples instead of reading files
	SyntheticSeed int64   `yaml:"synthetic_seed"`
	TestFraction  float64 `yaml:"test_fraction"`
	SplitSeed     int64   `yaml:"split_seed"`
	Prefetch      int     `yaml:"prefetch"`
}

// ModelConfig mirrors proxy.Config.
type ModelConfig struct {
	Height          int     `yaml:"height"`
	Width           int     `yaml:"width"`
	InChannels      int     `yaml:"in_channels"`
	EncoderChannels []int   `yaml:"encoder_channels"`
	AttentionDim    int     `yaml:"attention_dim"`
	NumHeads        int     `yaml:"num_heads"`
	HiddenChannels  int     `yaml:"hidden_channels"`
	DecoderChannels []int   `yaml:"decoder_channels"`
	Timesteps       int     `yaml:"timesteps"`
	NormEps         float32 `yaml:"norm_eps"`
	Seed            int64   `yaml:"seed"`
}

// LossConfig mirrors loss.Config.
type LossConfig struct {
	MSEWeight  float32 `yaml:"mse_weight"`
	SSIMWeight float32 `yaml:"ssim_weight"`
	SSIMWindow int     `yaml:"ssim_window"`
	SSIMSigma  float64 `yaml:"ssim_sigma"`
	K1         float64 `yaml:"k1"`
	K2         float64 `yaml:"k2"`
	DataRange  float64 `yaml:"data_range"`
}

// TrainConfig drives the epoch loop.
type TrainConfig struct {
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	LearningRate  float32 `yaml:"learning_rate"`
	Optimizer     string  `yaml:"optimizer"`
	Momentum      float32 `yaml:"momentum"`
	TrainFraction float64 `yaml:"train_fraction"`
	ReportEvery   int     `yaml:"report_every"`
	Seed          int64   `yaml:"seed"`
	NonFinite     string  `yaml:"non_finite"` // "skip" or "abort"
}

// RuntimeConfig selects the device and logging.
type RuntimeConfig struct {
	Device    string `yaml:"device"` // "auto", "cpu" or "webgpu"
	Workers   int    `yaml:"workers"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" or "json"
}

// Default returns the reference configuration for 64x64 fields.
func Default() *Config {
	m := proxy.DefaultConfig(64, 64)
	l := loss.DefaultConfig()
	return &Config{
		Data: DataConfig{
			InputDir:      "simulations2D/input_features",
			TargetDir:     "simulations2D/output_targets",
			SyntheticSeed: 1,
			TestFraction:  0.25,
			SplitSeed:     42,
			Prefetch:      2,
		},
		Model: ModelConfig{
			Height:          m.Height,
			Width:           m.Width,
			InChannels:      m.InChannels,
			EncoderChannels: m.EncoderChannels,
			AttentionDim:    m.AttentionDim,
			NumHeads:        m.NumHeads,
			HiddenChannels:  m.HiddenChannels,
			DecoderChannels: m.DecoderChannels,
			Timesteps:       m.Timesteps,
			NormEps:         m.NormEps,
			Seed:            1,
		},
		Loss: LossConfig{
			MSEWeight:  l.MSEWeight,
			SSIMWeight: l.SSIMWeight,
			SSIMWindow: l.SSIM.WindowSize,
			SSIMSigma:  l.SSIM.Sigma,
			K1:         l.SSIM.K1,
			K2:         l.SSIM.K2,
			DataRange:  l.SSIM.DataRange,
		},
		Train: TrainConfig{
			Epochs:        20,
			BatchSize:     32,
			LearningRate:  0.001,
			Optimizer:     "nadam",
			TrainFraction: 0.8,
			ReportEvery:   5,
			NonFinite:     "skip",
		},
		Runtime: RuntimeConfig{
			Device:    "auto",
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without validating. Unknown keys
// are rejected.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	if c.Data.Synthetic < 0 {
		return fmt.Errorf("%w: data.synthetic must be >= 0 (got %d)", ErrInvalid, c.Data.Synthetic)
	}
	if c.Data.Synthetic == 0 && (c.Data.InputDir == "" || c.Data.TargetDir == "") {
		return fmt.Errorf("%w: data.input_dir and data.target_dir are required without data.synthetic", ErrInvalid)
	}
	if c.Data.TestFraction < 0 || c.Data.TestFraction >= 1 {
		return fmt.Errorf("%w: data.test_fraction must be in [0, 1) (got %g)", ErrInvalid, c.Data.TestFraction)
	}
	if err := c.Model.Proxy().Validate(); err != nil {
		return fmt.Errorf("%w: model: %w", ErrInvalid, err)
	}
	if err := c.Loss.Loss().Validate(); err != nil {
		return fmt.Errorf("%w: loss: %w", ErrInvalid, err)
	}
	if c.Train.Epochs <= 0 {
		return fmt.Errorf("%w: train.epochs must be > 0 (got %d)", ErrInvalid, c.Train.Epochs)
	}
	if c.Train.BatchSize <= 0 {
		return fmt.Errorf("%w: train.batch_size must be > 0 (got %d)", ErrInvalid, c.Train.BatchSize)
	}
	if c.Train.LearningRate <= 0 {
		return fmt.Errorf("%w: train.learning_rate must be > 0 (got %g)", ErrInvalid, c.Train.LearningRate)
	}
	if !oneOf(c.Train.Optimizer, optim.Names...) {
		return fmt.Errorf("%w: train.optimizer %q (want one of %s)", ErrInvalid, c.Train.Optimizer, strings.Join(optim.Names, ", "))
	}
	if c.Train.TrainFraction <= 0 || c.Train.TrainFraction >= 1 {
		return fmt.Errorf("%w: train.train_fraction must be in (0, 1) (got %g)", ErrInvalid, c.Train.TrainFraction)
	}
	if c.Train.ReportEvery <= 0 {
		c.Train.ReportEvery = 5
	}
	if !oneOf(c.Train.NonFinite, "skip", "abort") {
		return fmt.Errorf("%w: train.non_finite %q (want skip or abort)", ErrInvalid, c.Train.NonFinite)
	}
	if !oneOf(c.Runtime.Device, "auto", "cpu", "webgpu") {
		return fmt.Errorf("%w: runtime.device %q (want auto, cpu or webgpu)", ErrInvalid, c.Runtime.Device)
	}
	if c.Runtime.Workers < 0 {
		return fmt.Errorf("%w: runtime.workers must be >= 0 (got %d)", ErrInvalid, c.Runtime.Workers)
	}
	if _, err := logrus.ParseLevel(c.Runtime.LogLevel); err != nil {
		return fmt.Errorf("%w: runtime.log_level: %w", ErrInvalid, err)
	}
	if !oneOf(c.Runtime.LogFormat, "text", "json") {
		return fmt.Errorf("%w: runtime.log_format %q (want text or json)", ErrInvalid, c.Runtime.LogFormat)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if strings.EqualFold(v, o) {
			return true
		}
	}
	return false
}

// Proxy converts the model section to the architecture config.
func (m ModelConfig) Proxy() proxy.Config {
	return proxy.Config{
		InChannels:      m.InChannels,
		EncoderChannels: m.EncoderChannels,
		AttentionDim:    m.AttentionDim,
		NumHeads:        m.NumHeads,
		HiddenChannels:  m.HiddenChannels,
		DecoderChannels: m.DecoderChannels,
		Timesteps:       m.Timesteps,
		Height:          m.Height,
		Width:           m.Width,
		NormEps:         m.NormEps,
	}
}

// Loss converts the loss section to the loss config.
func (l LossConfig) Loss() loss.Config {
	return loss.Config{
		MSEWeight:  l.MSEWeight,
		SSIMWeight: l.SSIMWeight,
		SSIM: loss.SSIMConfig{
			WindowSize: l.SSIMWindow,
			Sigma:      l.SSIMSigma,
			K1:         l.K1,
			K2:         l.K2,
			DataRange:  l.DataRange,
		},
	}
}
