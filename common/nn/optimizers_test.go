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
	"testing"

	"github.com/stretchr/testify/assert"
)

func testOptimizer(optimizerCreator func(params []*Tensor, lr float32) Optimizer, epochs int) (losses []float32) {
	// y = 2x + 1
	x := NewTensor([]float32{0, 0.25, 0.5, 0.75, 1}, 5, 1)
	y := NewTensor([]float32{1, 1.5, 2, 2.5, 3}, 5, 1)

	model := NewSequential(NewLinear(rand.New(rand.NewSource(0)), 1, 1))
	optimizer := optimizerCreator(model.Parameters(), 0.1)
	for i := 0; i < epochs; i++ {
		yPred := model.Forward(x)
		diff := Sub(yPred, y)
		loss := Mean(Mul(diff, diff))
		losses = append(losses, loss.Data()[0])

		optimizer.ZeroGrad()
		loss.Backward()
		optimizer.Step()
	}
	return
}

func TestSGD(t *testing.T) {
	losses := testOptimizer(NewSGD, 500)
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.Less(t, losses[len(losses)-1], float32(0.01))
}

func TestAdam(t *testing.T) {
	losses := testOptimizer(NewAdam, 500)
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.Less(t, losses[len(losses)-1], float32(0.01))
}

func TestSGD_ClipNorm(t *testing.T) {
	// the gradient (3, 4) has norm 5
	p := NewTensor([]float32{3, 4}, 2)
	optimizer := NewSGD([]*Tensor{p}, 1)
	optimizer.SetClipNorm(1)
	p.grad = NewTensor([]float32{3, 4}, 2)
	optimizer.Step()
	assert.InDeltaSlice(t, []float32{2.4, 3.2}, p.data, 1e-6)

	// gradients within the norm are untouched
	optimizer.SetClipNorm(10)
	p.grad = NewTensor([]float32{3, 4}, 2)
	optimizer.Step()
	assert.InDeltaSlice(t, []float32{-0.6, -0.8}, p.data, 1e-6)

	// parameters without gradients are skipped
	optimizer.ZeroGrad()
	optimizer.Step()
	assert.InDeltaSlice(t, []float32{-0.6, -0.8}, p.data, 1e-6)
}

func TestSGD_WeightDecay(t *testing.T) {
	p := NewTensor([]float32{1, -2}, 2)
	optimizer := NewSGD([]*Tensor{p}, 0.1)
	optimizer.SetWeightDecay(0.5)
	p.grad = NewTensor([]float32{1, 1}, 2)
	optimizer.Step()
	// p - 0.1 * (1 + 0.5 * p)
	assert.InDeltaSlice(t, []float32{0.85, -2.0}, p.data, 1e-6)
}

func TestAdam_ClipNorm(t *testing.T) {
	// with clipping, the first step of Adam still moves every coordinate by alpha
	p := NewTensor([]float32{0, 0}, 2)
	optimizer := NewAdam([]*Tensor{p}, 0.01)
	optimizer.SetClipNorm(1e-3)
	p.grad = NewTensor([]float32{30, -40}, 2)
	optimizer.Step()
	assert.InDeltaSlice(t, []float32{-0.01, 0.01}, p.data, 1e-4)
	assert.InDelta(t, float32(0.6e-3), p.grad.data[0], 1e-7)
	assert.InDelta(t, float32(-0.8e-3), p.grad.data[1], 1e-7)
}

func TestMLP(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	mlp := NewMLP(rng, 4, []int{8, 3, 1}, Elementwise(NewSigmoid))
	// linear, sigmoid, linear, sigmoid, linear
	assert.Len(t, mlp.Layers, 5)
	assert.Len(t, mlp.Parameters(), 6)
	y := mlp.Forward(Rand(2, 4))
	assert.Equal(t, []int{2, 1}, y.Shape())

	// every Dice owns alphas sized to its hidden layer
	mlp = NewMLP(rng, 4, []int{8, 3, 1}, NewDice)
	assert.Len(t, mlp.Layers, 5)
	assert.Len(t, mlp.Parameters(), 8)
	assert.Equal(t, []int{8}, mlp.Layers[1].Parameters()[0].Shape())
	assert.Equal(t, []int{3}, mlp.Layers[3].Parameters()[0].Shape())
	y = mlp.Forward(Rand(2, 4))
	assert.Equal(t, []int{2, 1}, y.Shape())
}
