// Package train runs the proxy model's epoch loop: per-epoch train and
// validation re-split, optimizer updates, loss aggregation and progress
// reporting.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/fieldproxy/internal/autodiff"
	"github.com/born-ml/fieldproxy/internal/dataset"
	"github.com/born-ml/fieldproxy/internal/loss"
	"github.com/born-ml/fieldproxy/internal/metrics"
	"github.com/born-ml/fieldproxy/internal/optim"
	"github.com/born-ml/fieldproxy/internal/proxy"
)

var (
	// ErrNonFiniteLoss aborts training under AbortNonFinite.
	ErrNonFiniteLoss = errors.New("train: non-finite loss")
	// ErrFinished is returned by RunEpoch once every epoch has run.
	ErrFinished = errors.New("train: training already finished")
	// ErrOptions reports invalid trainer options.
	ErrOptions = errors.New("train: invalid options")
)

// Options configures a Trainer.
type Options struct {
	Epochs        int
	BatchSize     int
	TrainFraction float64 // share of the pool trained on each epoch, the rest validates
	ReportEvery   int     // progress line period in epochs
	NonFinite     NonFinitePolicy
	Prefetch      int
	Seed          int64

	Progress io.Writer          // progress lines; nil discards them
	Logger   logrus.FieldLogger // nil uses the standard logger
}

// DefaultOptions returns the reference run settings.
func DefaultOptions() Options {
	return Options{
		Epochs:        20,
		BatchSize:     32,
		TrainFraction: 0.8,
		ReportEvery:   5,
		NonFinite:     SkipNonFinite,
		Prefetch:      2,
	}
}

func (o Options) validate(poolSize int) error {
	if o.Epochs <= 0 {
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrOptions, o.Epochs)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrOptions, o.BatchSize)
	}
	if o.TrainFraction <= 0 || o.TrainFraction >= 1 {
		return fmt.Errorf("%w: train fraction must be in (0, 1), got %g", ErrOptions, o.TrainFraction)
	}
	switch o.NonFinite {
	case SkipNonFinite, AbortNonFinite:
	default:
		return fmt.Errorf("%w: non-finite policy %q", ErrOptions, o.NonFinite)
	}
	trainSize := int(math.Floor(o.TrainFraction * float64(poolSize)))
	if trainSize == 0 || trainSize == poolSize {
		return fmt.Errorf("%w: %d samples cannot be split %g/%g: %w",
			ErrOptions, poolSize, o.TrainFraction, 1-o.TrainFraction, dataset.ErrEmpty)
	}
	return nil
}

// Trainer owns the training state of one run.
//
// The backend's tape records only inside a training step; validation and
// evaluation run with recording disabled.
type Trainer[B autodiff.BackwardCapable] struct {
	opts      Options
	model     *proxy.Model[B]
	loss      *loss.Composite[B]
	optimizer optim.Optimizer
	pool      dataset.Dataset
	backend   B
	rng       *rand.Rand

	runID   uuid.UUID
	log     logrus.FieldLogger
	state   State
	epoch   int
	skipped int
	history metrics.History
}

// New creates a trainer over the training pool.
func New[B autodiff.BackwardCapable](
	model *proxy.Model[B],
	lossFn *loss.Composite[B],
	optimizer optim.Optimizer,
	pool dataset.Dataset,
	backend B,
	opts Options,
) (*Trainer[B], error) {
	if model == nil || lossFn == nil || optimizer == nil || pool == nil {
		return nil, fmt.Errorf("%w: model, loss, optimizer and pool are required", ErrOptions)
	}
	if err := opts.validate(pool.Len()); err != nil {
		return nil, err
	}
	if opts.ReportEvery <= 0 {
		opts.ReportEvery = 5
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	runID := uuid.New()
	return &Trainer[B]{
		opts:      opts,
		model:     model,
		loss:      lossFn,
		optimizer: optimizer,
		pool:      pool,
		backend:   backend,
		rng:       rand.New(rand.NewSource(opts.Seed)), //nolint:gosec // G404: data split, not security-critical
		runID:     runID,
		log:       logger.WithField("run_id", runID.String()),
		state:     EpochStart,
	}, nil
}

// State returns the current state.
func (t *Trainer[B]) State() State { return t.state }

// Epoch returns the number of completed epochs.
func (t *Trainer[B]) Epoch() int { return t.epoch }

// RunID identifies the run in log output.
func (t *Trainer[B]) RunID() uuid.UUID { return t.runID }

// Skipped returns how many training batches were dropped for a non-finite loss.
func (t *Trainer[B]) Skipped() int { return t.skipped }

// History returns the per-epoch summaries so far.
func (t *Trainer[B]) History() *metrics.History { return &t.history }

// Run executes the remaining epochs and writes the final progress line.
func (t *Trainer[B]) Run(ctx context.Context) (*metrics.History, error) {
	t.log.WithFields(logrus.Fields{
		"epochs":     t.opts.Epochs,
		"batch_size": t.opts.BatchSize,
		"pool":       t.pool.Len(),
		"params":     t.model.NumParameters(),
	}).Info("training started")

	for t.state != Finished {
		if _, err := t.RunEpoch(ctx); err != nil {
			return &t.history, err
		}
	}
	fmt.Fprintln(t.opts.Progress, "Training finished.")
	t.log.WithField("skipped_batches", t.skipped).Info("training finished")
	return &t.history, nil
}

// RunEpoch re-splits the pool, trains on the training part, validates on
// the rest and reports.
//
// A fresh split every epoch means every sample is eventually trained on;
// the validation loss is therefore not a held-out estimate. Use Evaluate
// on a separate test set for that.
func (t *Trainer[B]) RunEpoch(ctx context.Context) (metrics.Epoch, error) {
	if t.state == Finished {
		return metrics.Epoch{}, ErrFinished
	}
	start := time.Now()
	epoch := t.epoch + 1
	log := t.log.WithField("epoch", epoch)

	t.state = EpochStart
	trainSet, valSet, err := dataset.RandomSplit(t.pool, t.opts.TrainFraction, t.rng)
	if err != nil {
		return metrics.Epoch{}, err
	}

	t.state = TrainPhase
	trainSnap, err := t.trainPhase(ctx, trainSet, log.WithField("phase", TrainPhase.String()))
	if err != nil {
		return metrics.Epoch{}, err
	}

	t.state = ValidationPhase
	valSnap, err := t.validationPhase(ctx, valSet)
	if err != nil {
		return metrics.Epoch{}, err
	}

	t.state = EpochEnd
	t.epoch = epoch
	summary := metrics.Epoch{
		Epoch:      epoch,
		Train:      trainSnap,
		Validation: valSnap,
		Duration:   time.Since(start),
	}
	t.history.Add(summary)

	log.WithFields(logrus.Fields{
		"phase":           EpochEnd.String(),
		"train_loss":      phaseLoss(trainSnap),
		"train_loss_std":  trainSnap.StdLoss,
		"val_loss":        phaseLoss(valSnap),
		"skipped":         trainSnap.Skipped,
		"samples_per_sec": trainSnap.SamplesPerSec,
		"duration":        summary.Duration.Round(time.Millisecond),
	}).Info("epoch complete")

	if epoch%t.opts.ReportEvery == 0 {
		line := fmt.Sprintf("Epoch: [%d/%d] | Loss: %.4f | Validation Loss: %.4f",
			epoch, t.opts.Epochs, phaseLoss(trainSnap), phaseLoss(valSnap))
		if trainSnap.Skipped > 0 {
			line += fmt.Sprintf(" | Skipped: %d", trainSnap.Skipped)
		}
		fmt.Fprintln(t.opts.Progress, line)
	}

	if epoch >= t.opts.Epochs {
		t.state = Finished
	} else {
		t.state = EpochStart
	}
	return summary, nil
}

// phaseLoss is NaN when every batch of the phase was skipped.
func phaseLoss(s metrics.Snapshot) float64 {
	if s.Batches == 0 {
		return math.NaN()
	}
	return s.MeanLoss
}

func (t *Trainer[B]) trainPhase(ctx context.Context, ds dataset.Dataset, log logrus.FieldLogger) (metrics.Snapshot, error) {
	loader, err := dataset.NewLoader(ds, dataset.LoaderConfig{
		BatchSize: t.opts.BatchSize,
		Shuffle:   true,
		Prefetch:  t.opts.Prefetch,
		Rng:       t.rng,
	}, t.backend)
	if err != nil {
		return metrics.Snapshot{}, err
	}

	var window metrics.Window
	it := loader.Iter(ctx)
	defer it.Close()

	for batchIdx := 0; ; batchIdx++ {
		startData := time.Now()
		if !it.Next() {
			break
		}
		dataTime := time.Since(startData)
		batch := it.Batch()

		startCompute := time.Now()
		value, err := t.step(batch)
		if err != nil {
			return metrics.Snapshot{}, err
		}
		computeTime := time.Since(startCompute)

		if math.IsNaN(value) || math.IsInf(value, 0) {
			if t.opts.NonFinite == AbortNonFinite {
				return metrics.Snapshot{}, fmt.Errorf("%w: batch %d loss %v", ErrNonFiniteLoss, batchIdx, value)
			}
			t.skipped++
			window.Skip()
			log.WithField("batch", batchIdx).Warnf("non-finite loss %v, batch skipped", value)
			continue
		}
		window.Record(batch.Size(), dataTime, computeTime, value)
		log.WithFields(logrus.Fields{"batch": batchIdx, "loss": value}).Debug("train step")
	}
	if err := it.Err(); err != nil {
		return metrics.Snapshot{}, err
	}
	return window.Snapshot(), nil
}

// step runs one forward/backward pass and, when the loss is finite,
// updates the parameters. It returns the batch loss.
func (t *Trainer[B]) step(batch dataset.Batch[B]) (float64, error) {
	tape := t.backend.GetTape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	t.optimizer.ZeroGrad()
	pred, err := t.model.Forward(batch.Inputs)
	if err != nil {
		return 0, err
	}
	l, err := t.loss.Forward(pred, batch.Targets)
	if err != nil {
		return 0, err
	}
	value := float64(l.Item())
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value, nil
	}

	grads, err := autodiff.Backward(l, t.backend)
	if err != nil {
		return 0, err
	}
	t.optimizer.Step(grads)
	return value, nil
}

func (t *Trainer[B]) validationPhase(ctx context.Context, ds dataset.Dataset) (metrics.Snapshot, error) {
	loader, err := dataset.NewLoader(ds, dataset.LoaderConfig{
		BatchSize: t.opts.BatchSize,
		Prefetch:  t.opts.Prefetch,
	}, t.backend)
	if err != nil {
		return metrics.Snapshot{}, err
	}

	var (
		window metrics.Window
		runErr error
	)
	t.backend.GetTape().Paused(func() {
		it := loader.Iter(ctx)
		defer it.Close()
		for {
			startData := time.Now()
			if !it.Next() {
				break
			}
			dataTime := time.Since(startData)
			batch := it.Batch()

			startCompute := time.Now()
			pred, err := t.model.Forward(batch.Inputs)
			if err != nil {
				runErr = err
				return
			}
			l, err := t.loss.Forward(pred, batch.Targets)
			if err != nil {
				runErr = err
				return
			}
			window.Record(batch.Size(), dataTime, time.Since(startCompute), float64(l.Item()))
		}
		runErr = it.Err()
	})
	if runErr != nil {
		return metrics.Snapshot{}, runErr
	}
	return window.Snapshot(), nil
}
