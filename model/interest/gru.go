// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package interest

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/gorse-io/dien/common/nn"
)

// Gate decides the blend between the previous state and the candidate state.
type Gate int

const (
	// UpdateGate blends by the learned update gate z.
	UpdateGate Gate = iota
	// AttentionGate blends by the attention weight a in place of z.
	AttentionGate
	// AttentionUpdateGate blends by a·z.
	AttentionUpdateGate
)

// GRUCell is a gated recurrent unit:
//
//	r = σ(x·Wr + h·Ur + br)
//	z = σ(x·Wz + h·Uz + bz)
//	c = tanh(x·Wh + (r⊙h)·Uh + bh)
//	h' = (1-u)⊙h + u⊙c
//
// where u is z, a or a·z depending on the gate.
type GRUCell struct {
	inputDim  int
	hiddenDim int

	wr, wz, wh *nn.Linear
	ur, uz, uh *nn.Tensor
}

func NewGRUCell(rng *rand.Rand, inputDim, hiddenDim int) *GRUCell {
	std := 1 / math32.Sqrt(float32(hiddenDim))
	return &GRUCell{
		inputDim:  inputDim,
		hiddenDim: hiddenDim,
		wr:        nn.NewLinear(rng, inputDim, hiddenDim),
		wz:        nn.NewLinear(rng, inputDim, hiddenDim),
		wh:        nn.NewLinear(rng, inputDim, hiddenDim),
		ur:        nn.Normal(rng, 0, std, hiddenDim, hiddenDim),
		uz:        nn.Normal(rng, 0, std, hiddenDim, hiddenDim),
		uh:        nn.Normal(rng, 0, std, hiddenDim, hiddenDim),
	}
}

func (c *GRUCell) Parameters() []*nn.Tensor {
	params := []*nn.Tensor{c.ur, c.uz, c.uh}
	params = append(params, c.wr.Parameters()...)
	params = append(params, c.wz.Parameters()...)
	params = append(params, c.wh.Parameters()...)
	return params
}

// Step advances the state h (B, H) by input x (B, I). Attention a (B, 1) is only read by
// attentional gates.
func (c *GRUCell) Step(x, h, a *nn.Tensor, gate Gate) *nn.Tensor {
	r := nn.Sigmoid(nn.Add(c.wr.Forward(x), nn.MatMul(h, c.ur)))
	candidate := nn.Tanh(nn.Add(c.wh.Forward(x), nn.MatMul(nn.Mul(r, h), c.uh)))
	var u *nn.Tensor
	switch gate {
	case AttentionGate:
		u = nn.Scale(nn.Ones(h.Shape()...), a)
	case AttentionUpdateGate:
		u = nn.Scale(c.update(x, h), a)
	default:
		u = c.update(x, h)
	}
	return nn.Add(nn.Mul(nn.Sub(nn.NewScalar(1), u), h), nn.Mul(u, candidate))
}

func (c *GRUCell) update(x, h *nn.Tensor) *nn.Tensor {
	return nn.Sigmoid(nn.Add(c.wz.Forward(x), nn.MatMul(h, c.uz)))
}

// Run unrolls the cell over a time-major sequence from the zero state and returns the
// state after every step. Examples invalid at a step carry their previous state
// forward unchanged. weights is only read by attentional gates.
func (c *GRUCell) Run(inputs []*nn.Tensor, mask *SequenceMask, weights []*nn.Tensor, gate Gate) []*nn.Tensor {
	h := nn.Zeros(mask.BatchSize(), c.hiddenDim)
	states := make([]*nn.Tensor, len(inputs))
	for t, x := range inputs {
		var a *nn.Tensor
		if gate != UpdateGate {
			a = weights[t]
		}
		h = nn.Where(mask.Step(t), c.Step(x, h, a, gate), h)
		states[t] = h
	}
	return states
}
