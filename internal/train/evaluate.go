package train

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/fieldproxy/internal/dataset"
	"github.com/born-ml/fieldproxy/internal/metrics"
)

// Evaluation summarizes the model on a held-out set. Every value is the
// mean over batches.
type Evaluation struct {
	Batches  int
	Samples  int
	Loss     float64
	MSE      float64
	SSIM     float64
	StepSSIM []float64 // SSIM at each predicted time step
	Curve    metrics.Curve
}

// Evaluate runs the model over ds in fixed order without recording
// gradients and logs the result.
func (t *Trainer[B]) Evaluate(ctx context.Context, ds dataset.Dataset) (Evaluation, error) {
	loader, err := dataset.NewLoader(ds, dataset.LoaderConfig{
		BatchSize: t.opts.BatchSize,
		Prefetch:  t.opts.Prefetch,
	}, t.backend)
	if err != nil {
		return Evaluation{}, err
	}

	var (
		ev     Evaluation
		runErr error
	)
	t.backend.GetTape().Paused(func() {
		it := loader.Iter(ctx)
		defer it.Close()
		for it.Next() {
			batch := it.Batch()
			pred, err := t.model.Forward(batch.Inputs)
			if err != nil {
				runErr = err
				return
			}
			b, err := t.loss.Evaluate(pred, batch.Targets)
			if err != nil {
				runErr = err
				return
			}
			if ev.StepSSIM == nil {
				ev.StepSSIM = make([]float64, len(b.StepSSIM))
			}
			for i, v := range b.StepSSIM {
				ev.StepSSIM[i] += v
			}
			ev.Loss += b.Total
			ev.MSE += b.MSE
			ev.SSIM += b.SSIM
			ev.Samples += batch.Size()
			ev.Batches++
		}
		runErr = it.Err()
	})
	if runErr != nil {
		return Evaluation{}, runErr
	}

	n := float64(ev.Batches)
	ev.Loss /= n
	ev.MSE /= n
	ev.SSIM /= n
	for i := range ev.StepSSIM {
		ev.StepSSIM[i] /= n
	}
	ev.Curve = metrics.Summarize(ev.StepSSIM)

	t.log.WithFields(logrus.Fields{
		"phase":      "test",
		"samples":    ev.Samples,
		"loss":       ev.Loss,
		"mse":        ev.MSE,
		"ssim":       ev.SSIM,
		"ssim_first": ev.Curve.First,
		"ssim_last":  ev.Curve.Last,
		"ssim_min":   ev.Curve.Min,
		"ssim_worst": ev.Curve.ArgMin + 1,
	}).Info("test evaluation")
	return ev, nil
}
