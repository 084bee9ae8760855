// Package metrics aggregates per-batch training measurements into
// per-phase summaries.
package metrics

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Window accumulates losses and timing stats across the batches of one phase.
type Window struct {
	losses  []float64
	samples int
	skipped int
	data    time.Duration
	compute time.Duration
}

// Record adds a new measurement to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss float64) {
	w.losses = append(w.losses, loss)
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
}

// Skip counts a batch whose loss was discarded.
func (w *Window) Skip() {
	w.skipped++
}

// Batches returns the number of recorded batches.
func (w *Window) Batches() int {
	return len(w.losses)
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{
		Batches: len(w.losses),
		Samples: w.samples,
		Skipped: w.skipped,
	}
	total := w.data + w.compute
	if total > 0 {
		snap.SamplesPerSec = float64(w.samples) / total.Seconds()
	}
	if n := len(w.losses); n > 0 {
		snap.MeanLoss = stat.Mean(w.losses, nil)
		snap.MinLoss = floats.Min(w.losses)
		snap.MaxLoss = floats.Max(w.losses)
		if n > 1 {
			snap.StdLoss = stat.StdDev(w.losses, nil)
		}
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(n)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(n)
	}

	w.losses = w.losses[:0]
	w.samples = 0
	w.skipped = 0
	w.data = 0
	w.compute = 0
	return snap
}

// Snapshot represents loggable metrics of one phase.
type Snapshot struct {
	Batches       int
	Samples       int
	Skipped       int
	MeanLoss      float64 // unweighted mean of the batch losses
	StdLoss       float64
	MinLoss       float64
	MaxLoss       float64
	SamplesPerSec float64
	AvgDataMS     float64
	AvgComputeMS  float64
}

// Epoch pairs the training and validation summaries of one epoch.
type Epoch struct {
	Epoch      int
	Train      Snapshot
	Validation Snapshot
	Duration   time.Duration
}

// History keeps every epoch of a run.
type History struct {
	Epochs []Epoch
}

// Add appends an epoch summary.
func (h *History) Add(e Epoch) {
	h.Epochs = append(h.Epochs, e)
}

// Best returns the epoch with the lowest validation loss.
func (h *History) Best() (Epoch, bool) {
	if len(h.Epochs) == 0 {
		return Epoch{}, false
	}
	vals := make([]float64, len(h.Epochs))
	for i, e := range h.Epochs {
		vals[i] = e.Validation.MeanLoss
	}
	return h.Epochs[floats.MinIdx(vals)], true
}

// TrainLosses returns the mean training loss of every epoch.
func (h *History) TrainLosses() []float64 {
	out := make([]float64, len(h.Epochs))
	for i, e := range h.Epochs {
		out[i] = e.Train.MeanLoss
	}
	return out
}

// Trend returns the least-squares slope of ys against their index, the
// per-epoch rate of change of a loss curve.
func Trend(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}

// Curve summarizes a per-step series such as the SSIM over time.
type Curve struct {
	Mean   float64
	First  float64
	Last   float64
	Min    float64
	ArgMin int
}

// Summarize computes a Curve for ys.
func Summarize(ys []float64) Curve {
	if len(ys) == 0 {
		return Curve{}
	}
	idx := floats.MinIdx(ys)
	return Curve{
		Mean:   stat.Mean(ys, nil),
		First:  ys[0],
		Last:   ys[len(ys)-1],
		Min:    ys[idx],
		ArgMin: idx,
	}
}
