//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// pipeline returns the cached compute pipeline for name, compiling the
// shader on first use.
func (b *Backend) pipeline(name, code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	p, ok := b.pipelines[name]
	b.mu.RUnlock()
	if ok {
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines[name]; ok {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	b.shaders[name] = shader
	p = b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[name] = p
	return p
}

func float32Bytes(data []float32) []byte {
	if len(data) == 0 {
		return nil
	}
	//nolint:gosec // reinterpreting float32 storage for upload
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
}

// upload creates a storage buffer initialized with data.
func (b *Backend) upload(data []float32) *wgpu.Buffer {
	raw := float32Bytes(data)
	size := uint64(len(raw))
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // mapped range is size bytes long
	copy(unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size), raw)
	buf.Unmap()
	return buf
}

// uniform creates a 16-byte aligned uniform buffer of u32 parameters.
func (b *Backend) uniform(values ...uint32) *wgpu.Buffer {
	size := uint64((len(values)*4 + 15) &^ 15)
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // mapped range is size bytes long
	mapped := unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size)
	for i, v := range values {
		binary.LittleEndian.PutUint32(mapped[i*4:], v)
	}
	buf.Unmap()
	return buf
}

// download copies a storage buffer into dst through a staging buffer.
func (b *Backend) download(src *wgpu.Buffer, dst []float32) error {
	size := uint64(len(dst) * 4)
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	//nolint:gosec // mapped range is size bytes long
	copy(float32Bytes(dst), unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return nil
}

// dispatch binds inputs, the result buffer and params in that order, runs
// the pipeline and reads the result into out.
func (b *Backend) dispatch(p *wgpu.ComputePipeline, inputs []*tensor.RawTensor, params *wgpu.Buffer, out *tensor.RawTensor, groupsX, groupsY uint32) error {
	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+2)
	for i, in := range inputs {
		buf := b.upload(in.Data())
		defer buf.Release()
		//nolint:gosec // G115: binding index and byte size are non-negative
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(in.ByteSize())))
	}

	//nolint:gosec // G115: ByteSize is non-negative
	outSize := uint64(out.ByteSize())
	result := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  outSize,
	})
	defer result.Release()
	defer params.Release()

	//nolint:gosec // G115: binding index is small
	n := uint32(len(inputs))
	entries = append(entries,
		wgpu.BufferBindingEntry(n, result, 0, outSize),
		wgpu.BufferBindingEntry(n+1, params, 0, 16),
	)
	group := b.device.CreateBindGroupSimple(p.GetBindGroupLayout(0), entries)
	defer group.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, group, nil)
	pass.DispatchWorkgroups(groupsX, groupsY, 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	return b.download(result, out.Data())
}

func (b *Backend) runElementwise(op, shader string, inputs ...*tensor.RawTensor) (*tensor.RawTensor, error) {
	n := inputs[0].NumElements()
	out, err := tensor.NewRaw(inputs[0].Shape(), tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: element counts fit in u32 for offloaded kernels
	params := b.uniform(uint32(n))
	//nolint:gosec // G115: workgroup count is non-negative
	groups := uint32((n + workgroupSize - 1) / workgroupSize)
	if err := b.dispatch(b.pipeline(op, shader), inputs, params, out, groups, 1); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) runMatMul(x, y *tensor.RawTensor, m, k, n int) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: matrix dims fit in u32
	params := b.uniform(uint32(m), uint32(k), uint32(n))
	//nolint:gosec // G115: workgroup counts are non-negative
	gx, gy := uint32((n+matmulTile-1)/matmulTile), uint32((m+matmulTile-1)/matmulTile)
	if err := b.dispatch(b.pipeline("matmul", matmulShader), []*tensor.RawTensor{x, y}, params, out, gx, gy); err != nil {
		return nil, err
	}
	return out, nil
}
