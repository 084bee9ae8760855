package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirDataset pairs .npy files from an input-feature directory with .npy
// files from an output-target directory by sorted file name order.
//
// Each file is read on Get and normalized to [0, 1].
type DirDataset struct {
	inputs  []string
	targets []string
}

// DiscoverNPY returns the sorted .npy files directly inside dir.
func DiscoverNPY(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discover npy: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".npy") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// NewDirDataset scans inputDir and targetDir.
func NewDirDataset(inputDir, targetDir string) (*DirDataset, error) {
	inputs, err := DiscoverNPY(inputDir)
	if err != nil {
		return nil, err
	}
	targets, err := DiscoverNPY(targetDir)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("dataset: no .npy files in %s: %w", inputDir, ErrEmpty)
	}
	if len(inputs) != len(targets) {
		return nil, fmt.Errorf("dataset: %d input files in %s but %d target files in %s",
			len(inputs), inputDir, len(targets), targetDir)
	}
	return &DirDataset{inputs: inputs, targets: targets}, nil
}

// Len returns the number of file pairs.
func (d *DirDataset) Len() int {
	return len(d.inputs)
}

// Get reads and normalizes pair i.
func (d *DirDataset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(d.inputs) {
		return Sample{}, fmt.Errorf("dataset: index %d out of range [0, %d)", i, len(d.inputs))
	}
	in, err := readField(d.inputs[i], 3)
	if err != nil {
		return Sample{}, err
	}
	out, err := readField(d.targets[i], 4)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Input: in, Target: out}, nil
}

// Files returns the input and target paths of pair i.
func (d *DirDataset) Files(i int) (string, string) {
	return d.inputs[i], d.targets[i]
}

func readField(path string, rank int) (Field, error) {
	data, shape, err := ReadNPY(path)
	if err != nil {
		return Field{}, err
	}
	if len(shape) != rank {
		return Field{}, fmt.Errorf("dataset: %s has shape %v, want rank %d: %w", path, shape, rank, ErrShape)
	}
	MinMaxNormalize(data)
	return Field{Data: data, Shape: shape}, nil
}
