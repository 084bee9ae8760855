package dataset

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Batch is a stacked group of samples on the loader's backend.
type Batch[B tensor.Backend] struct {
	Inputs  *tensor.Tensor[B] // [N, C, H, W]
	Targets *tensor.Tensor[B] // [N, T, C', H, W]
}

// Size returns the number of samples in the batch.
func (b Batch[B]) Size() int {
	return b.Inputs.Shape()[0]
}

// LoaderConfig configures batching.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool
	Prefetch  int        // batches assembled ahead of the consumer (default 2)
	Rng       *rand.Rand // shuffle source; nil uses the global source
}

// Loader iterates over a dataset in batches. The last batch may be smaller.
type Loader[B tensor.Backend] struct {
	ds      Dataset
	cfg     LoaderConfig
	backend B
}

// NewLoader creates a loader over ds.
func NewLoader[B tensor.Backend](ds Dataset, cfg LoaderConfig, backend B) (*Loader[B], error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be positive, got %d", cfg.BatchSize)
	}
	if ds.Len() == 0 {
		return nil, ErrEmpty
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 2
	}
	return &Loader[B]{ds: ds, cfg: cfg, backend: backend}, nil
}

// NumBatches returns ceil(len/batch_size).
func (l *Loader[B]) NumBatches() int {
	return (l.ds.Len() + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Len returns the number of samples.
func (l *Loader[B]) Len() int {
	return l.ds.Len()
}

type batchResult[B tensor.Backend] struct {
	batch Batch[B]
	err   error
}

// Iter starts a pass over the dataset. A producer goroutine assembles
// batches ahead of the consumer until the pass ends, an error occurs, ctx
// is cancelled or the iterator is closed.
func (l *Loader[B]) Iter(ctx context.Context) *Iterator[B] {
	order := make([]int, l.ds.Len())
	if l.cfg.Shuffle {
		if l.cfg.Rng != nil {
			order = l.cfg.Rng.Perm(len(order))
		} else {
			order = rand.Perm(len(order)) //nolint:gosec // G404: data shuffling, not security-critical
		}
	} else {
		for i := range order {
			order[i] = i
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan batchResult[B], l.cfg.Prefetch)
	go func() {
		defer close(out)
		for start := 0; start < len(order); start += l.cfg.BatchSize {
			end := min(start+l.cfg.BatchSize, len(order))
			b, err := l.assemble(order[start:end])
			select {
			case <-ctx.Done():
				return
			case out <- batchResult[B]{batch: b, err: err}:
			}
			if err != nil {
				return
			}
		}
	}()
	return &Iterator[B]{ctx: ctx, cancel: cancel, results: out}
}

func (l *Loader[B]) assemble(indices []int) (Batch[B], error) {
	var inputs, targets []float32
	var inShape, outShape tensor.Shape
	for i, idx := range indices {
		s, err := l.ds.Get(idx)
		if err != nil {
			return Batch[B]{}, err
		}
		if i == 0 {
			inShape, outShape = s.Input.Shape, s.Target.Shape
			inputs = make([]float32, 0, len(indices)*len(s.Input.Data))
			targets = make([]float32, 0, len(indices)*len(s.Target.Data))
		} else if !inShape.Equal(s.Input.Shape) || !outShape.Equal(s.Target.Shape) {
			return Batch[B]{}, fmt.Errorf("dataset: sample %d has shapes %v/%v, batch has %v/%v: %w",
				idx, s.Input.Shape, s.Target.Shape, inShape, outShape, ErrShape)
		}
		inputs = append(inputs, s.Input.Data...)
		targets = append(targets, s.Target.Data...)
	}

	n := len(indices)
	x, err := tensor.FromSlice(inputs, append(tensor.Shape{n}, inShape...), l.backend)
	if err != nil {
		return Batch[B]{}, err
	}
	y, err := tensor.FromSlice(targets, append(tensor.Shape{n}, outShape...), l.backend)
	if err != nil {
		return Batch[B]{}, err
	}
	return Batch[B]{Inputs: x, Targets: y}, nil
}

// Iterator yields the batches of one pass.
//
//	it := loader.Iter(ctx)
//	defer it.Close()
//	for it.Next() {
//	    batch := it.Batch()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[B tensor.Backend] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	results <-chan batchResult[B]
	current Batch[B]
	err     error
}

// Next advances to the next batch. It returns false at the end of the
// pass or on error.
func (it *Iterator[B]) Next() bool {
	if it.err != nil {
		return false
	}
	select {
	case <-it.ctx.Done():
		it.err = it.ctx.Err()
		return false
	case r, ok := <-it.results:
		if !ok {
			// The producer also stops on cancellation; report it.
			it.err = it.ctx.Err()
			return false
		}
		if r.err != nil {
			it.err = r.err
			return false
		}
		it.current = r.batch
		return true
	}
}

// Batch returns the current batch.
func (it *Iterator[B]) Batch() Batch[B] {
	return it.current
}

// Err returns the error that ended the pass, if any.
func (it *Iterator[B]) Err() error {
	return it.err
}

// Close stops the producer. It is safe to call more than once.
func (it *Iterator[B]) Close() {
	it.cancel()
	for range it.results {
	}
}
