// Copyright 2024 gorse Project Authors
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

package nn

import (
	"github.com/chewxy/math32"
	"github.com/gorse-io/dien/common/floats"
)

// Optimizer updates parameters by the gradients accumulated since ZeroGrad.
type Optimizer interface {
	SetWeightDecay(rate float32)
	// SetClipNorm rescales the gradients of a step whose global L2 norm exceeds
	// maxNorm. Zero disables clipping.
	SetClipNorm(maxNorm float32)
	ZeroGrad()
	Step()
}

type baseOptimizer struct {
	params   []*Tensor
	wd       float32
	clipNorm float32
}

func (o *baseOptimizer) ZeroGrad() {
	for _, p := range o.params {
		p.grad = nil
	}
}

func (o *baseOptimizer) SetWeightDecay(wd float32) {
	o.wd = wd
}

func (o *baseOptimizer) SetClipNorm(maxNorm float32) {
	o.clipNorm = maxNorm
}

// clipGrads scales gradients in place so that their global norm is at most clipNorm.
func (o *baseOptimizer) clipGrads() {
	if o.clipNorm <= 0 {
		return
	}
	var sumSquares float32
	for _, p := range o.params {
		if p.grad != nil {
			sumSquares += floats.Dot(p.grad.data, p.grad.data)
		}
	}
	norm := math32.Sqrt(sumSquares)
	if norm <= o.clipNorm {
		return
	}
	for _, p := range o.params {
		if p.grad != nil {
			floats.MulConst(p.grad.data, o.clipNorm/norm)
		}
	}
}

type SGD struct {
	baseOptimizer
	lr float32
}

func NewSGD(params []*Tensor, lr float32) Optimizer {
	return &SGD{
		baseOptimizer: baseOptimizer{params: params},
		lr:            lr,
	}
}

func (s *SGD) Step() {
	s.clipGrads()
	for _, p := range s.params {
		if p.grad == nil {
			continue
		}
		// p = p - lr * (grad + wd * p)
		floats.MulConst(p.data, 1-s.lr*s.wd)
		floats.MulConstAdd(p.grad.data, -s.lr, p.data)
	}
}

// moments are the running averages Adam keeps for one parameter.
type moments struct {
	first  []float32
	second []float32
}

type Adam struct {
	baseOptimizer
	alpha   float32
	beta1   float32
	beta2   float32
	eps     float32
	moments map[*Tensor]*moments
	steps   int
}

func NewAdam(params []*Tensor, alpha float32) Optimizer {
	return &Adam{
		baseOptimizer: baseOptimizer{params: params},
		alpha:         alpha,
		beta1:         0.9,
		beta2:         0.999,
		eps:           1e-8,
		moments:       make(map[*Tensor]*moments),
	}
}

func (a *Adam) Step() {
	a.clipGrads()
	a.steps++
	// bias corrections are folded into the step size
	t := float32(a.steps)
	lr := a.alpha * math32.Sqrt(1-math32.Pow(a.beta2, t)) / (1 - math32.Pow(a.beta1, t))
	for _, p := range a.params {
		if p.grad == nil {
			continue
		}
		m, ok := a.moments[p]
		if !ok {
			m = &moments{
				first:  make([]float32, len(p.data)),
				second: make([]float32, len(p.data)),
			}
			a.moments[p] = m
		}
		for i, g := range p.grad.data {
			g += a.wd * p.data[i]
			m.first[i] += (1 - a.beta1) * (g - m.first[i])
			m.second[i] += (1 - a.beta2) * (g*g - m.second[i])
			p.data[i] -= lr * m.first[i] / (math32.Sqrt(m.second[i]) + a.eps)
		}
	}
}
