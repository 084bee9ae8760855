package dataset_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/born-ml/fieldproxy/internal/backend/cpu"
	"github.com/born-ml/fieldproxy/internal/dataset"
	"github.com/born-ml/fieldproxy/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNPY_EncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	data := []float32{0, 1.5, -2, 3, 4, 5}
	require.NoError(t, dataset.EncodeNPY(&buf, data, []int{2, 3}))
	assert.Zero(t, (buf.Len()-len(data)*4)%64, "data must start on a 64-byte boundary")

	got, shape, err := dataset.DecodeNPY(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, shape)
	assert.Equal(t, data, got)
}

// npyBytes hand-builds an .npy stream the way numpy writes it.
func npyBytes(t *testing.T, major byte, header string, payload any) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{major, 0})
	if major == 1 {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	} else {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(header))))
	}
	buf.WriteString(header)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, payload))
	return buf.Bytes()
}

func TestNPY_DecodeVariants(t *testing.T) {
	tests := []struct {
		name    string
		major   byte
		header  string
		payload any
		shape   []int
		want    []float32
	}{
		{
			name:    "v1 float64",
			major:   1,
			header:  "{'descr': '<f8', 'fortran_order': False, 'shape': (2, 2), }\n",
			payload: []float64{1, 2, 3, 4},
			shape:   []int{2, 2},
			want:    []float32{1, 2, 3, 4},
		},
		{
			name:    "v2 float32 1D",
			major:   2,
			header:  "{'descr': '<f4', 'fortran_order': False, 'shape': (3,), }\n",
			payload: []float32{7, 8, 9},
			shape:   []int{3},
			want:    []float32{7, 8, 9},
		},
		{
			name:    "double quoted descr",
			major:   1,
			header:  "{'descr': \"<f4\", 'fortran_order': False, 'shape': (1, 1, 2)}\n",
			payload: []float32{-1, 1},
			shape:   []int{1, 1, 2},
			want:    []float32{-1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, shape, err := dataset.DecodeNPY(bytes.NewReader(npyBytes(t, tt.major, tt.header, tt.payload)))
			require.NoError(t, err)
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNPY_Unsupported(t *testing.T) {
	for name, raw := range map[string][]byte{
		"bad magic":     []byte("NOTNUMPY........"),
		"int dtype":     npyBytes(t, 1, "{'descr': '<i4', 'fortran_order': False, 'shape': (1,), }\n", []int32{1}),
		"fortran order": npyBytes(t, 1, "{'descr': '<f4', 'fortran_order': True, 'shape': (1,), }\n", []float32{1}),
		"big endian":    npyBytes(t, 1, "{'descr': '>f4', 'fortran_order': False, 'shape': (1,), }\n", []float32{1}),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := dataset.DecodeNPY(bytes.NewReader(raw))
			assert.ErrorIs(t, err, dataset.ErrFormat)
		})
	}
}

func TestMinMaxNormalize(t *testing.T) {
	data := []float32{2, 4, 6, 3}
	dataset.MinMaxNormalize(data)
	assert.Equal(t, []float32{0, 0.5, 1, 0.25}, data)

	constant := []float32{5, 5, 5}
	dataset.MinMaxNormalize(constant)
	assert.Equal(t, []float32{0, 0, 0}, constant)

	dataset.MinMaxNormalize(nil)
}

func TestSynthetic(t *testing.T) {
	ds, err := dataset.Synthetic(dataset.SyntheticConfig{Samples: 3, Height: 8, Width: 12, Timesteps: 5, Seed: 1})
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	s, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 8, 12}, s.Input.Shape)
	assert.Equal(t, tensor.Shape{5, 2, 8, 12}, s.Target.Shape)

	for _, f := range []dataset.Field{s.Input, s.Target} {
		lo, hi := f.Data[0], f.Data[0]
		for _, v := range f.Data {
			lo, hi = min(lo, v), max(hi, v)
		}
		assert.InDelta(t, 0, lo, 1e-6)
		assert.InDelta(t, 1, hi, 1e-6)
	}

	again, err := dataset.Synthetic(dataset.SyntheticConfig{Samples: 3, Height: 8, Width: 12, Timesteps: 5, Seed: 1})
	require.NoError(t, err)
	s2, err := again.Get(0)
	require.NoError(t, err)
	assert.Equal(t, s.Target.Data, s2.Target.Data)

	_, err = dataset.Synthetic(dataset.SyntheticConfig{Samples: 0, Height: 8, Width: 8, Timesteps: 1})
	assert.Error(t, err)
}

func TestDirDataset_RoundTrip(t *testing.T) {
	root := t.TempDir()
	inDir := filepath.Join(root, "input_features")
	outDir := filepath.Join(root, "output_targets")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	synth, err := dataset.Synthetic(dataset.SyntheticConfig{Samples: 4, Height: 8, Width: 8, Timesteps: 3, Seed: 2})
	require.NoError(t, err)
	require.NoError(t, dataset.Export(synth, inDir, outDir))
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "notes.txt"), []byte("ignored"), 0o600))

	ds, err := dataset.NewDirDataset(inDir, outDir)
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())

	in, out := ds.Files(2)
	assert.Equal(t, "sample_00002.npy", filepath.Base(in))
	assert.Equal(t, "sample_00002.npy", filepath.Base(out))

	got, err := ds.Get(2)
	require.NoError(t, err)
	want, err := synth.Get(2)
	require.NoError(t, err)
	assert.Equal(t, want.Input.Shape, got.Input.Shape)
	assert.InDeltaSlice(t, want.Target.Data, got.Target.Data, 1e-6)

	_, err = ds.Get(4)
	assert.Error(t, err)
}

func TestDirDataset_Errors(t *testing.T) {
	root := t.TempDir()
	_, err := dataset.NewDirDataset(root, root)
	assert.ErrorIs(t, err, dataset.ErrEmpty)

	_, err = dataset.NewDirDataset(filepath.Join(root, "missing"), root)
	assert.Error(t, err)

	inDir, outDir := filepath.Join(root, "a"), filepath.Join(root, "b")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, dataset.WriteNPY(filepath.Join(inDir, "x.npy"), []float32{1, 2}, []int{1, 1, 2}))
	_, err = dataset.NewDirDataset(inDir, outDir)
	assert.Error(t, err)

	// Wrong rank target.
	require.NoError(t, dataset.WriteNPY(filepath.Join(outDir, "x.npy"), []float32{1, 2}, []int{2}))
	ds, err := dataset.NewDirDataset(inDir, outDir)
	require.NoError(t, err)
	_, err = ds.Get(0)
	assert.ErrorIs(t, err, dataset.ErrShape)
}

func indexDataset(n int) *dataset.MemoryDataset {
	samples := make([]dataset.Sample, n)
	for i := range samples {
		samples[i] = dataset.Sample{
			Input:  dataset.Field{Data: []float32{float32(i), 0}, Shape: tensor.Shape{1, 1, 2}},
			Target: dataset.Field{Data: []float32{float32(i), 1, 2, 3}, Shape: tensor.Shape{2, 1, 1, 2}},
		}
	}
	return dataset.NewMemoryDataset(samples)
}

func TestRandomSplit(t *testing.T) {
	ds := indexDataset(10)
	train, val, err := dataset.RandomSplit(ds, 0.8, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, val.Len())

	all := append(append([]int{}, train.Indices()...), val.Indices()...)
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)

	// floor(0.8*7) = 5
	train, val, err = dataset.RandomSplit(indexDataset(7), 0.8, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 5, train.Len())
	assert.Equal(t, 2, val.Len())

	_, _, err = dataset.RandomSplit(ds, 1, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
	_, _, err = dataset.RandomSplit(indexDataset(0), 0.8, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, dataset.ErrEmpty)
}

func TestTrainTestSplit(t *testing.T) {
	ds := indexDataset(10)
	train, test, err := dataset.TrainTestSplit(ds, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, test.Len()) // ceil(2.5)
	assert.Equal(t, 7, train.Len())

	train2, test2, err := dataset.TrainTestSplit(ds, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, train.Indices(), train2.Indices())
	assert.Equal(t, test.Indices(), test2.Indices())

	s, err := test.Get(0)
	require.NoError(t, err)
	assert.Equal(t, float32(test.Indices()[0]), s.Input.Data[0])

	_, _, err = dataset.TrainTestSplit(indexDataset(1), 0.25, 42)
	assert.Error(t, err)
}

func TestLoader_Batches(t *testing.T) {
	backend := cpu.New()
	loader, err := dataset.NewLoader(indexDataset(5), dataset.LoaderConfig{BatchSize: 2}, backend)
	require.NoError(t, err)
	assert.Equal(t, 3, loader.NumBatches())

	it := loader.Iter(context.Background())
	defer it.Close()

	var sizes []int
	var firsts []float32
	for it.Next() {
		b := it.Batch()
		sizes = append(sizes, b.Size())
		firsts = append(firsts, b.Inputs.Data()[0])
		assert.Equal(t, tensor.Shape{b.Size(), 1, 1, 2}, b.Inputs.Shape())
		assert.Equal(t, tensor.Shape{b.Size(), 2, 1, 1, 2}, b.Targets.Shape())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []float32{0, 2, 4}, firsts)
}

func TestLoader_ShuffleVisitsEverySample(t *testing.T) {
	loader, err := dataset.NewLoader(indexDataset(9), dataset.LoaderConfig{
		BatchSize: 4, Shuffle: true, Rng: rand.New(rand.NewSource(3)),
	}, cpu.New())
	require.NoError(t, err)

	it := loader.Iter(context.Background())
	defer it.Close()

	var seen []int
	for it.Next() {
		x := it.Batch().Inputs
		for i := 0; i < x.Shape()[0]; i++ {
			seen = append(seen, int(x.At(i, 0, 0, 0)))
		}
	}
	require.NoError(t, it.Err())
	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, seen)
}

func TestLoader_Cancel(t *testing.T) {
	loader, err := dataset.NewLoader(indexDataset(50), dataset.LoaderConfig{BatchSize: 1, Prefetch: 1}, cpu.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	it := loader.Iter(ctx)
	require.True(t, it.Next())
	cancel()

	for it.Next() {
	}
	assert.ErrorIs(t, it.Err(), context.Canceled)
	it.Close()
	it.Close()
}

func TestLoader_Errors(t *testing.T) {
	_, err := dataset.NewLoader(indexDataset(3), dataset.LoaderConfig{}, cpu.New())
	assert.Error(t, err)

	_, err = dataset.NewLoader(indexDataset(0), dataset.LoaderConfig{BatchSize: 1}, cpu.New())
	assert.ErrorIs(t, err, dataset.ErrEmpty)

	mixed := dataset.NewMemoryDataset([]dataset.Sample{
		{Input: dataset.Field{Data: []float32{1}, Shape: tensor.Shape{1, 1, 1}}, Target: dataset.Field{Data: []float32{1}, Shape: tensor.Shape{1, 1, 1, 1}}},
		{Input: dataset.Field{Data: []float32{1, 2}, Shape: tensor.Shape{1, 1, 2}}, Target: dataset.Field{Data: []float32{1}, Shape: tensor.Shape{1, 1, 1, 1}}},
	})
	loader, err := dataset.NewLoader(mixed, dataset.LoaderConfig{BatchSize: 2}, cpu.New())
	require.NoError(t, err)
	it := loader.Iter(context.Background())
	defer it.Close()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), dataset.ErrShape)
}
