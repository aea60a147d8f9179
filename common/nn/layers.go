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
	"math/rand"

	"github.com/chewxy/math32"
)

type Layer interface {
	Parameters() []*Tensor
	Forward(x *Tensor) *Tensor
}

type Model Layer

type Linear struct {
	W *Tensor
	B *Tensor
}

// NewLinear creates a fully connected layer with weights drawn from N(0, 1/in).
func NewLinear(rng *rand.Rand, in, out int) *Linear {
	return &Linear{
		W: Normal(rng, 0, 1.0/math32.Sqrt(float32(in)), in, out),
		B: Zeros(out),
	}
}

func (l *Linear) Forward(x *Tensor) *Tensor {
	return Add(MatMul(x, l.W), l.B)
}

func (l *Linear) Parameters() []*Tensor {
	return []*Tensor{l.W, l.B}
}

type sigmoidLayer struct{}

func NewSigmoid() Layer {
	return &sigmoidLayer{}
}

func (s *sigmoidLayer) Parameters() []*Tensor {
	return nil
}

func (s *sigmoidLayer) Forward(x *Tensor) *Tensor {
	return Sigmoid(x)
}

type reluLayer struct{}

func NewReLU() Layer {
	return &reluLayer{}
}

func (r *reluLayer) Parameters() []*Tensor {
	return nil
}

func (r *reluLayer) Forward(x *Tensor) *Tensor {
	return ReLu(x)
}

type tanhLayer struct{}

func NewTanh() Layer {
	return &tanhLayer{}
}

func (t *tanhLayer) Parameters() []*Tensor {
	return nil
}

func (t *tanhLayer) Forward(x *Tensor) *Tensor {
	return Tanh(x)
}

// Elementwise adapts a parameter-free activation to the constructor NewMLP expects.
func Elementwise(newLayer func() Layer) func(size int) Layer {
	return func(int) Layer {
		return newLayer()
	}
}

// Dice is a data-adaptive activation: p(x)*x + alpha*(1-p(x))*x, where p is the
// sigmoid of x normalized by the mean and variance of the batch.
type Dice struct {
	Alpha *Tensor
	eps   float32
}

// NewDice creates a Dice activation over size features with alpha set to zero.
func NewDice(size int) Layer {
	return &Dice{
		Alpha: Zeros(size),
		eps:   1e-9,
	}
}

func (d *Dice) Parameters() []*Tensor {
	return []*Tensor{d.Alpha}
}

func (d *Dice) Forward(x *Tensor) *Tensor {
	n := x.shape[0]
	// (n, 1) x (1, n) broadcasts the column means back to every row
	average := func(x *Tensor) *Tensor {
		return MatMul(Ones(n, 1), MatMul(Full(1/float32(n), 1, n), x))
	}
	centered := Sub(x, average(x))
	std := Sqrt(Add(average(Mul(centered, centered)), NewScalar(d.eps)))
	p := Sigmoid(Div(centered, std))
	return Add(Mul(p, x), Mul(Mul(Sub(NewScalar(1), p), x), d.Alpha))
}

type Sequential struct {
	Layers []Layer
}

func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{Layers: layers}
}

// NewMLP stacks linear layers of the given sizes with an activation after every
// hidden layer. The last layer has no activation.
func NewMLP(rng *rand.Rand, in int, sizes []int, activation func(size int) Layer) *Sequential {
	var layers []Layer
	for i, size := range sizes {
		layers = append(layers, NewLinear(rng, in, size))
		if i < len(sizes)-1 {
			layers = append(layers, activation(size))
		}
		in = size
	}
	return NewSequential(layers...)
}

func (s *Sequential) Parameters() []*Tensor {
	var params []*Tensor
	for _, l := range s.Layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

func (s *Sequential) Forward(x *Tensor) *Tensor {
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}
