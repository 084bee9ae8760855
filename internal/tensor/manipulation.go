package tensor

// Reshape returns a tensor with the same data but a different shape.
//
// Example:
//
//	t := tensor.Zeros(Shape{12}, backend)
//	r := t.Reshape(3, 4)
func (t *Tensor[B]) Reshape(newShape ...int) *Tensor[B] {
	return New(t.backend.Reshape(t.raw, Shape(newShape)), t.backend)
}

// Transpose permutes the dimensions.
//
// If axes is empty, all dimensions are reversed.
//
// Example:
//
//	t := tensor.Zeros(Shape{2, 3, 4}, backend)
//	p := t.Transpose(2, 0, 1) // Shape: [4, 2, 3]
func (t *Tensor[B]) Transpose(axes ...int) *Tensor[B] {
	return New(t.backend.Transpose(t.raw, axes...), t.backend)
}

// T is a shortcut for 2D transpose.
func (t *Tensor[B]) T() *Tensor[B] {
	if len(t.Shape()) != 2 {
		panic("T() only works for 2D tensors")
	}
	return t.Transpose(1, 0)
}

// Narrow returns length elements starting at start along dim.
func (t *Tensor[B]) Narrow(dim, start, length int) *Tensor[B] {
	return New(t.backend.Narrow(t.raw, dim, start, length), t.backend)
}

// Chunk splits the tensor into n equal parts along dim.
func (t *Tensor[B]) Chunk(n, dim int) []*Tensor[B] {
	dim = t.Shape().NormalizeDim(dim)
	size := t.Shape()[dim]
	if size%n != 0 {
		panic("chunk: dimension size must be divisible by n")
	}
	step := size / n
	parts := make([]*Tensor[B], n)
	for i := range parts {
		parts[i] = t.Narrow(dim, i*step, step)
	}
	return parts
}

// Cat concatenates tensors along dim.
//
// All tensors must share every dimension except dim.
func Cat[B Backend](tensors []*Tensor[B], dim int) *Tensor[B] {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	backend := tensors[0].backend
	return New(backend.Cat(raws, dim), backend)
}

// Stack joins tensors of identical shape along a new dimension dim.
func Stack[B Backend](tensors []*Tensor[B], dim int) *Tensor[B] {
	if len(tensors) == 0 {
		panic("stack: at least one tensor required")
	}
	base := tensors[0].Shape()
	if dim < 0 {
		dim += len(base) + 1
	}

	expanded := make(Shape, 0, len(base)+1)
	expanded = append(expanded, base[:dim]...)
	expanded = append(expanded, 1)
	expanded = append(expanded, base[dim:]...)

	parts := make([]*Tensor[B], len(tensors))
	for i, t := range tensors {
		parts[i] = t.Reshape(expanded...)
	}
	return Cat(parts, dim)
}
