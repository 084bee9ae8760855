// Package dataset provides the training data collaborator of the proxy
// model: paired (input field, target field sequence) samples read from .npy
// files or generated synthetically, train/validation/test splits, and a
// batching loader that prefetches on a goroutine.
//
// Every sample is min-max normalized to [0, 1], input and target
// independently.
package dataset

import (
	"errors"
	"fmt"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// Sentinel errors.
var (
	ErrEmpty = errors.New("dataset is empty")
	ErrShape = tensor.ErrShape
)

// Field is a dense float32 array with its shape.
type Field struct {
	Data  []float32
	Shape tensor.Shape
}

// Sample is one training pair. Input is [C, H, W]; Target is [T, C', H, W].
type Sample struct {
	Input  Field
	Target Field
}

// Dataset is a random-access collection of samples.
type Dataset interface {
	Len() int
	Get(i int) (Sample, error)
}

// MinMaxNormalize rescales data in place to [0, 1]. A constant array maps
// to all zeros.
func MinMaxNormalize(data []float32) {
	if len(data) == 0 {
		return
	}
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	for i, v := range data {
		if span == 0 {
			data[i] = 0
			continue
		}
		data[i] = (v - lo) / span
	}
}

// MemoryDataset holds all samples in memory.
type MemoryDataset struct {
	samples []Sample
}

// NewMemoryDataset wraps samples.
func NewMemoryDataset(samples []Sample) *MemoryDataset {
	return &MemoryDataset{samples: samples}
}

// Len returns the number of samples.
func (m *MemoryDataset) Len() int {
	return len(m.samples)
}

// Get returns sample i.
func (m *MemoryDataset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(m.samples) {
		return Sample{}, fmt.Errorf("dataset: index %d out of range [0, %d)", i, len(m.samples))
	}
	return m.samples[i], nil
}

// Subset is a view of a dataset restricted to the given indices.
type Subset struct {
	parent  Dataset
	indices []int
}

// NewSubset creates a view of parent.
func NewSubset(parent Dataset, indices []int) *Subset {
	return &Subset{parent: parent, indices: indices}
}

// Len returns the number of indices.
func (s *Subset) Len() int {
	return len(s.indices)
}

// Get returns the parent sample at indices[i].
func (s *Subset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(s.indices) {
		return Sample{}, fmt.Errorf("dataset: index %d out of range [0, %d)", i, len(s.indices))
	}
	return s.parent.Get(s.indices[i])
}

// Indices returns the parent indices of the view.
func (s *Subset) Indices() []int {
	return s.indices
}

// Materialize loads every sample of ds into memory.
func Materialize(ds Dataset) (*MemoryDataset, error) {
	samples := make([]Sample, ds.Len())
	for i := range samples {
		s, err := ds.Get(i)
		if err != nil {
			return nil, err
		}
		samples[i] = s
	}
	return NewMemoryDataset(samples), nil
}
