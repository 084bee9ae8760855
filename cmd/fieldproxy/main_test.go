package main

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fieldproxy/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestVersionAndUsage(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fieldproxy "+version+"\n", out)

	_, stderr, err := runCLI(t)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, stderr, "Commands:")

	_, _, err = runCLI(t, "serve")
	assert.ErrorContains(t, err, `unknown command "serve"`)
}

func TestLoadConfig_Overrides(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := loadConfig(fs, []string{
		"-config", "../../configs/smoke.yaml",
		"-epochs", "2", "-lr", "0.01", "-optimizer", "adam", "-ssim-weight", "0.25",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Train.Epochs)
	assert.InDelta(t, 0.01, cfg.Train.LearningRate, 1e-9)
	assert.Equal(t, "adam", cfg.Train.Optimizer)
	assert.InDelta(t, 0.25, cfg.Loss.SSIMWeight, 1e-9)
	assert.Equal(t, 24, cfg.Data.Synthetic)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err = loadConfig(fs, []string{"-mse-weight", "1", "-ssim-weight", "0"})
	require.NoError(t, err)
	assert.InDelta(t, 1, cfg.Loss.MSEWeight, 1e-9)
	assert.Zero(t, cfg.Loss.SSIMWeight)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	_, err = loadConfig(fs, []string{"-device", "tpu"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("epoch", 3).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"epoch":3`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
}

func TestTrain_Synthetic(t *testing.T) {
	out, _, err := runCLI(t, "train",
		"-config", "../../configs/smoke.yaml",
		"-log-level", "error",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^Epoch: \[5/5\] \| Loss: \d+\.\d{4} \| Validation Loss: \d+\.\d{4}$`, lines[0])
	assert.Equal(t, "Training finished.", lines[1])
}

func TestSynthThenTrainFromFiles(t *testing.T) {
	dir := t.TempDir()
	in, target := filepath.Join(dir, "in"), filepath.Join(dir, "out")

	out, _, err := runCLI(t, "synth",
		"-samples", "8", "-height", "16", "-width", "16", "-timesteps", "3",
		"-input-dir", in, "-target-dir", target,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 8 samples")

	out, stderr, err := runCLI(t, "train",
		"-input-dir", in, "-target-dir", target,
		"-height", "16", "-width", "16", "-timesteps", "3",
		"-epochs", "1", "-batch-size", "4", "-device", "cpu",
		"-log-level", "info", "-log-format", "json",
	)
	require.NoError(t, err)
	assert.Equal(t, "Training finished.\n", out)
	assert.Contains(t, stderr, `"msg":"test evaluation"`)
	assert.Contains(t, stderr, `"samples":2`)
}

func TestTrain_MissingData(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runCLI(t, "train",
		"-input-dir", filepath.Join(dir, "nope"), "-target-dir", filepath.Join(dir, "nope2"),
		"-device", "cpu", "-log-level", "error",
	)
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	out, _, err := runCLI(t, "info", "-config", "../../configs/smoke.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Host:")
	assert.Contains(t, out, "WebGPU:")
	assert.Contains(t, out, "Output:    [1 6 2 16 16]")
	assert.Contains(t, out, "parameters")
}
