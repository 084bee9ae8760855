package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/fieldproxy/internal/tensor"
)

// MultiHeadAttention implements unmasked multi-head self-attention.
//
// Architecture:
//
//	MHA(X) = Concat(head_1, ..., head_h) * W_O
//	head_i = softmax(Q_i K_i^T / sqrt(d)) V_i,  Q = X W_Q, K = X W_K, V = X W_V
//
// All four projections carry a bias. Q/K/V weights are Xavier-initialized
// over the stacked [3E, E] projection and every bias starts at zero, like
// PyTorch's nn.MultiheadAttention.
//
// Example:
//
//	mha, err := nn.NewMultiHeadAttention(64, 16, rng, backend) // head_dim = 4
//	output := mha.Forward(tokens) // [batch, seq, 64]
type MultiHeadAttention[B tensor.Backend] struct {
	WQ       *Linear[B]
	WK       *Linear[B]
	WV       *Linear[B]
	WO       *Linear[B]
	NumHeads int
	HeadDim  int
	EmbedDim int
}

// NewMultiHeadAttention creates a new multi-head attention module.
//
// Returns ErrConfig when embedDim is not divisible by numHeads.
func NewMultiHeadAttention[B tensor.Backend](embedDim, numHeads int, rng *rand.Rand, backend B) (*MultiHeadAttention[B], error) {
	if embedDim <= 0 || numHeads <= 0 {
		return nil, fmt.Errorf("%w: attention embed_dim=%d num_heads=%d must be positive", ErrConfig, embedDim, numHeads)
	}
	if embedDim%numHeads != 0 {
		return nil, fmt.Errorf("%w: attention embed_dim (%d) must be divisible by num_heads (%d)", ErrConfig, embedDim, numHeads)
	}

	inProj := func() *Linear[B] {
		return &Linear[B]{
			inFeatures:  embedDim,
			outFeatures: embedDim,
			weight:      NewParameter("weight", Xavier(embedDim, 3*embedDim, tensor.Shape{embedDim, embedDim}, rng, backend)),
			bias:        NewParameter("bias", tensor.Zeros(tensor.Shape{embedDim}, backend)),
		}
	}
	m := &MultiHeadAttention[B]{
		WQ:       inProj(),
		WK:       inProj(),
		WV:       inProj(),
		WO:       NewLinear(embedDim, embedDim, rng, backend),
		NumHeads: numHeads,
		HeadDim:  embedDim / numHeads,
		EmbedDim: embedDim,
	}
	m.WO.bias = NewParameter("bias", tensor.Zeros(tensor.Shape{embedDim}, backend))

	Prefix("q_proj", m.WQ.Parameters())
	Prefix("k_proj", m.WK.Parameters())
	Prefix("v_proj", m.WV.Parameters())
	Prefix("out_proj", m.WO.Parameters())
	return m, nil
}

// Forward computes self-attention over x.
//
// Input and output shape: [batch, seq, embed_dim]
func (m *MultiHeadAttention[B]) Forward(x *tensor.Tensor[B]) *tensor.Tensor[B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != m.EmbedDim {
		panic(fmt.Sprintf("MultiHeadAttention.Forward: expected [batch, seq, %d], got %v", m.EmbedDim, shape))
	}
	batch, seq := shape[0], shape[1]

	flat := x.Reshape(batch*seq, m.EmbedDim)
	q := m.splitHeads(m.WQ.Forward(flat), batch, seq)
	k := m.splitHeads(m.WK.Forward(flat), batch, seq)
	v := m.splitHeads(m.WV.Forward(flat), batch, seq)

	attn := ScaledDotProductAttention(q, k, v)

	// [batch*heads, seq, head_dim] -> [batch*seq, embed_dim]
	merged := attn.Reshape(batch, m.NumHeads, seq, m.HeadDim).
		Transpose(0, 2, 1, 3).
		Reshape(batch*seq, m.EmbedDim)
	return m.WO.Forward(merged).Reshape(batch, seq, m.EmbedDim)
}

// splitHeads turns [batch*seq, embed_dim] into [batch*heads, seq, head_dim].
func (m *MultiHeadAttention[B]) splitHeads(t *tensor.Tensor[B], batch, seq int) *tensor.Tensor[B] {
	return t.Reshape(batch, seq, m.NumHeads, m.HeadDim).
		Transpose(0, 2, 1, 3).
		Reshape(batch*m.NumHeads, seq, m.HeadDim)
}

// Parameters returns all trainable parameters (WQ, WK, WV, WO weights and biases).
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 8)
	params = append(params, m.WQ.Parameters()...)
	params = append(params, m.WK.Parameters()...)
	params = append(params, m.WV.Parameters()...)
	params = append(params, m.WO.Parameters()...)
	return params
}

// ScaledDotProductAttention computes softmax(Q K^T / sqrt(d)) V.
//
// q, k, v: [batch, seq, d]. Returns [batch, seq_q, d].
func ScaledDotProductAttention[B tensor.Backend](q, k, v *tensor.Tensor[B]) *tensor.Tensor[B] {
	d := q.Shape()[2]
	scores := q.MatMul(k.Transpose(0, 2, 1)).MulScalar(float32(1 / math.Sqrt(float64(d))))
	return scores.Softmax().MatMul(v)
}
