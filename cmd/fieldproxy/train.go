package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/fieldproxy/internal/autodiff"
	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/backend/webgpu"
	"github.com/born-ml/fieldproxy/internal/config"
	"github.com/born-ml/fieldproxy/internal/dataset"
	"github.com/born-ml/fieldproxy/internal/loss"
	"github.com/born-ml/fieldproxy/internal/optim"
	"github.com/born-ml/fieldproxy/internal/parallel"
	"github.com/born-ml/fieldproxy/internal/proxy"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"github.com/born-ml/fieldproxy/internal/train"
)

// loadConfig parses the shared config flags, loads the file (or the
// defaults when path is empty) and applies the overrides.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	cfgPath := fs.String("config", "", "Path to YAML config (defaults when empty)")
	var o config.Overrides
	fs.StringVar(&o.InputDir, "input-dir", "", "Override data.input_dir")
	fs.StringVar(&o.TargetDir, "target-dir", "", "Override data.target_dir")
	fs.IntVar(&o.Synthetic, "synthetic", 0, "Generate N synthetic samples instead of reading files")
	fs.IntVar(&o.Height, "height", 0, "Field height")
	fs.IntVar(&o.Width, "width", 0, "Field width")
	fs.IntVar(&o.Timesteps, "timesteps", 0, "Predicted time steps")
	fs.IntVar(&o.Epochs, "epochs", 0, "Number of epochs")
	fs.IntVar(&o.BatchSize, "batch-size", 0, "Batch size")
	lr := fs.Float64("lr", 0, "Learning rate")
	fs.StringVar(&o.Optimizer, "optimizer", "", "Optimizer: nadam, adam or sgd")
	mse := fs.Float64("mse-weight", 0, "MSE loss weight")
	ssim := fs.Float64("ssim-weight", 0, "SSIM loss weight")
	fs.Int64Var(&o.Seed, "seed", 0, "PRNG seed for weights and splits")
	fs.StringVar(&o.NonFinite, "non-finite", "", "Non-finite loss policy: skip or abort")
	fs.StringVar(&o.Device, "device", "", "Device: auto, cpu or webgpu")
	fs.IntVar(&o.Workers, "workers", 0, "CPU kernel workers")
	fs.StringVar(&o.LogLevel, "log-level", "", "Log level")
	fs.StringVar(&o.LogFormat, "log-format", "", "Log format: text or json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.LearningRate = float32(*lr)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mse-weight":
			w := float32(*mse)
			o.MSEWeight = &w
		case "ssim-weight":
			w := float32(*ssim)
			o.SSIMWeight = &w
		}
	})

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return nil, err
		}
	}
	cfg.ApplyOverrides(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func trainCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, cfg.Runtime.LogLevel, cfg.Runtime.LogFormat)
	if err != nil {
		return err
	}

	pool, err := loadPool(cfg)
	if err != nil {
		return err
	}
	logger.WithField("samples", pool.Len()).Info("dataset ready")

	switch strings.ToLower(cfg.Runtime.Device) {
	case "cpu":
		return runTraining(ctx, cfg, pool, newCPU(cfg), stdout, logger)
	case "webgpu":
		gpu, err := webgpu.New()
		if err != nil {
			return err
		}
		defer gpu.Release()
		return runTraining(ctx, cfg, pool, gpu, stdout, logger)
	default:
		if webgpu.IsAvailable() {
			gpu, err := webgpu.New()
			if err == nil {
				defer gpu.Release()
				return runTraining(ctx, cfg, pool, gpu, stdout, logger)
			}
			logger.WithError(err).Warn("webgpu unavailable, using cpu")
		}
		return runTraining(ctx, cfg, pool, newCPU(cfg), stdout, logger)
	}
}

func newCPU(cfg *config.Config) *cpu.CPUBackend {
	par := parallel.DefaultConfig()
	if cfg.Runtime.Workers > 0 {
		par.NumWorkers = cfg.Runtime.Workers
		par.Enabled = cfg.Runtime.Workers > 1
	}
	return cpu.New(cpu.WithParallel(par))
}

func loadPool(cfg *config.Config) (dataset.Dataset, error) {
	if cfg.Data.Synthetic > 0 {
		return dataset.Synthetic(dataset.SyntheticConfig{
			Samples:   cfg.Data.Synthetic,
			Height:    cfg.Model.Height,
			Width:     cfg.Model.Width,
			Timesteps: cfg.Model.Timesteps,
			Seed:      cfg.Data.SyntheticSeed,
		})
	}
	return dataset.NewDirDataset(cfg.Data.InputDir, cfg.Data.TargetDir)
}

// runTraining builds the model on backend, trains it on the training part
// of pool and evaluates the held-out part.
func runTraining[B tensor.Backend](
	ctx context.Context,
	cfg *config.Config,
	pool dataset.Dataset,
	inner B,
	stdout io.Writer,
	logger *logrus.Logger,
) error {
	backend := autodiff.New(inner)
	logger.WithField("backend", backend.Name()).Info("device selected")

	trainPool, testSet, err := dataset.TrainTestSplit(pool, cfg.Data.TestFraction, cfg.Data.SplitSeed)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Model.Seed)) //nolint:gosec // G404: weight init, not security-critical
	model, err := proxy.New(cfg.Model.Proxy(), rng, backend)
	if err != nil {
		return err
	}
	fields := logrus.Fields{"params": model.NumParameters()}
	for name, n := range model.BlockSizes() {
		fields["params_"+name] = n
	}
	logger.WithFields(fields).Info("model built")

	lossFn, err := loss.NewComposite[*autodiff.AutodiffBackend[B]](cfg.Loss.Loss())
	if err != nil {
		return err
	}
	opt, err := optim.New(cfg.Train.Optimizer, model.Parameters(), optim.Config{
		LR:       cfg.Train.LearningRate,
		Momentum: cfg.Train.Momentum,
	}, backend)
	if err != nil {
		return err
	}

	trainer, err := train.New(model, lossFn, opt, trainPool, backend, train.Options{
		Epochs:        cfg.Train.Epochs,
		BatchSize:     cfg.Train.BatchSize,
		TrainFraction: cfg.Train.TrainFraction,
		ReportEvery:   cfg.Train.ReportEvery,
		NonFinite:     train.NonFinitePolicy(strings.ToLower(cfg.Train.NonFinite)),
		Prefetch:      cfg.Data.Prefetch,
		Seed:          cfg.Train.Seed,
		Progress:      stdout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	if _, err := trainer.Run(ctx); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if testSet.Len() == 0 {
		return nil
	}
	if _, err := trainer.Evaluate(ctx, testSet); err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	return nil
}
