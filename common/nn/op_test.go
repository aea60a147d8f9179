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
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

const (
	eps  = 1e-3
	rtol = 1e-2
	atol = 5e-3
)

func numericalDiff(f func(*Tensor) *Tensor, x *Tensor) *Tensor {
	x0, x1 := x.clone(), x.clone()
	dx := make([]float32, len(x.data))
	for i, v := range x.data {
		x0.data[i] = v - eps
		x1.data[i] = v + eps
		y0 := f(x0)
		y1 := f(x1)
		for j := range y0.data {
			dx[i] += (y1.data[j] - y0.data[j]) / (2 * eps)
		}
		x0.data[i] = v
		x1.data[i] = v
	}
	return NewTensor(dx, x.shape...)
}

func allClose(t *testing.T, a, b *Tensor) {
	if !assert.Equal(t, a.shape, b.shape) {
		return
	}
	for i := range a.data {
		if math32.Abs(a.data[i]-b.data[i]) > atol+rtol*math32.Abs(b.data[i]) {
			t.Fatalf("a.data[%d] = %f, b.data[%d] = %f\n", i, a.data[i], i, b.data[i])
			return
		}
	}
}

func TestAdd(t *testing.T) {
	// (2,3) + (2,3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4, 5, 6, 7}, 2, 3)
	z := Add(x, y)
	assert.Equal(t, []float32{3, 5, 7, 9, 11, 13}, z.data)

	// Test gradient
	x = Rand(2, 3)
	y = Rand(2, 3)
	z = Add(x, y)
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Add(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Add(x, y) }, y)
	allClose(t, y.grad, dy)

	// (2,3) + (3) -> (2,3)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = NewTensor([]float32{2, 3, 4}, 3)
	z = Add(x, y)
	assert.Equal(t, []float32{3, 5, 7, 6, 8, 10}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{2, 2, 2}, y.grad.data)
}

func TestSub(t *testing.T) {
	// (2,3) - (3) -> (2,3)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4}, 3)
	z := Sub(x, y)
	assert.Equal(t, []float32{-1, -1, -1, 2, 2, 2}, z.data)
	z.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)
	assert.Equal(t, []float32{-2, -2, -2}, y.grad.data)

	// () - (2,3) -> (2,3)
	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	z = Sub(NewScalar(1), x)
	assert.Equal(t, []float32{0, -1, -2, -3, -4, -5}, z.data)
	z.Backward()
	assert.Equal(t, []float32{-1, -1, -1, -1, -1, -1}, x.grad.data)
}

func TestMul(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{2, 3, 4}, 3)
	z := Mul(x, y)
	assert.Equal(t, []float32{2, 6, 12, 8, 15, 24}, z.data)

	// Test gradient
	x = Rand(2, 3)
	y = Rand(3)
	z = Mul(x, y)
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Mul(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Mul(x, y) }, y)
	allClose(t, y.grad, dy)
}

func TestDiv(t *testing.T) {
	x := NewTensor([]float32{2, 4, 6, 8, 10, 12}, 2, 3)
	y := NewTensor([]float32{2, 4, 3}, 3)
	z := Div(x, y)
	assert.Equal(t, []float32{1, 1, 2, 4, 2.5, 4}, z.data)

	// Test gradient
	x = Rand(2, 3)
	y = Add(Rand(3), NewScalar(1)).NoGrad()
	z = Div(x, y)
	z.Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Div(x, y) }, x)
	allClose(t, x.grad, dx)
	dy := numericalDiff(func(y *Tensor) *Tensor { return Div(x, y) }, y)
	allClose(t, y.grad, dy)
}

func TestExpLog(t *testing.T) {
	x := NewTensor([]float32{0, 1}, 2)
	assert.InDeltaSlice(t, []float32{1, float32(math.E)}, Exp(x).data, 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1}, Log(Exp(x)).data, 1e-6)

	// Test gradient
	x = Add(Rand(2, 3), NewScalar(0.5)).NoGrad()
	y := Log(x)
	y.Backward()
	allClose(t, x.grad, numericalDiff(Log, x))
	x.grad = nil
	y = Exp(x)
	y.Backward()
	allClose(t, x.grad, numericalDiff(Exp, x))
}

func TestTanh(t *testing.T) {
	x := NewTensor([]float32{-1, 0, 1}, 3)
	y := Tanh(x)
	assert.InDeltaSlice(t, []float32{-0.7615941559557649, 0, 0.7615941559557649}, y.data, 1e-6)

	// Test gradient
	x = Rand(2, 3)
	y = Tanh(x)
	y.Backward()
	allClose(t, x.grad, numericalDiff(Tanh, x))
}

func TestSigmoid(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	y := Sigmoid(x)
	assert.InDeltaSlice(t, []float32{0.5, 0.7310585786300049, 0.8807970779778823, 0.9525741268224334, 0.9820137900379085, 0.9933071490757153}, y.data, 1e-6)

	// Test gradient
	x = Rand(2, 3)
	y = Sigmoid(x)
	y.Backward()
	dx := numericalDiff(Sigmoid, x)
	allClose(t, x.grad, dx)
}

func TestReLu(t *testing.T) {
	// (2,3) -> (2,3)
	x := NewTensor([]float32{-1, 0, 1, 2, 3, 4}, 2, 3)
	y := ReLu(x)
	assert.Equal(t, []float32{0, 0, 1, 2, 3, 4}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{0, 0, 1, 1, 1, 1}, x.grad.data)
}

func TestClip(t *testing.T) {
	x := NewTensor([]float32{-1, 0.5, 2}, 3)
	y := Clip(x, 0, 1)
	assert.Equal(t, []float32{0, 0.5, 1}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{0, 1, 0}, x.grad.data)
}

func TestSumMean(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Sum(x)
	assert.Empty(t, y.shape)
	assert.Equal(t, float32(21), y.data[0])
	y.Backward()
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, x.grad.data)

	x = NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y = Mean(x)
	assert.Equal(t, float32(3.5), y.data[0])
	y.Backward()
	assert.InDeltaSlice(t, []float32{1.0 / 6, 1.0 / 6, 1.0 / 6, 1.0 / 6, 1.0 / 6, 1.0 / 6}, x.grad.data, 1e-6)
}

func TestMatMul(t *testing.T) {
	// (2,3) * (3,4) -> (2,4)
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := NewTensor([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 3, 4)
	z := MatMul(x, y)
	assert.Equal(t, []int{2, 4}, z.shape)
	assert.Equal(t, []float32{38, 44, 50, 56, 83, 98, 113, 128}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []int{2, 3}, x.grad.shape)
	assert.Equal(t, []float32{10, 26, 42, 10, 26, 42}, x.grad.data)
	assert.Equal(t, []int{3, 4}, y.grad.shape)
	assert.Equal(t, []float32{5, 5, 5, 5, 7, 7, 7, 7, 9, 9, 9, 9}, y.grad.data)
}

func TestConcat(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4}, 2, 2)
	y := NewTensor([]float32{5, 6}, 2, 1)
	z := Concat(x, y)
	assert.Equal(t, []int{2, 3}, z.shape)
	assert.Equal(t, []float32{1, 2, 5, 3, 4, 6}, z.data)

	// Test gradient
	w := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	Sum(Mul(z, w)).Backward()
	assert.Equal(t, []float32{1, 2, 4, 5}, x.grad.data)
	assert.Equal(t, []float32{3, 6}, y.grad.data)
}

func TestSlice(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Slice(x, 1, 3)
	assert.Equal(t, []int{2, 2}, y.shape)
	assert.Equal(t, []float32{2, 3, 5, 6}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{0, 1, 1, 0, 1, 1}, x.grad.data)
	assert.Panics(t, func() { Slice(x, 2, 4) })
}

func TestScale(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	w := NewTensor([]float32{2, 0}, 2, 1)
	y := Scale(x, w)
	assert.Equal(t, []float32{2, 4, 6, 0, 0, 0}, y.data)

	// Test gradient
	x = Rand(2, 3)
	w = Rand(2, 1)
	Scale(x, w).Backward()
	allClose(t, x.grad, numericalDiff(func(x *Tensor) *Tensor { return Scale(x, w) }, x))
	allClose(t, w.grad, numericalDiff(func(w *Tensor) *Tensor { return Scale(x, w) }, w))
}

func TestWhere(t *testing.T) {
	x := NewTensor([]float32{1, 2, 3, 4}, 2, 2)
	y := NewTensor([]float32{5, 6, 7, 8}, 2, 2)
	z := Where([]bool{true, false}, x, y)
	assert.Equal(t, []float32{1, 2, 7, 8}, z.data)

	// Test gradient
	z.Backward()
	assert.Equal(t, []float32{1, 1, 0, 0}, x.grad.data)
	assert.Equal(t, []float32{0, 0, 1, 1}, y.grad.data)
}

func TestMaskedSoftmax(t *testing.T) {
	x := NewTensor([]float32{3.0, 1.0, 0.2, 5, 1, 2}, 2, 3)
	mask := []bool{true, true, true, false, false, false}
	y := MaskedSoftmax(x, mask)
	assert.InDeltaSlice(t, []float32{0.8360188027814407, 0.11314284146556013, 0.05083835575299916, 0, 0, 0}, y.data, 1e-6)

	// masked entries are excluded
	mask = []bool{true, true, false, true, false, true}
	y = MaskedSoftmax(x, mask)
	assert.Zero(t, y.data[2])
	assert.Zero(t, y.data[4])
	assert.InDelta(t, 1, y.data[0]+y.data[1], 1e-6)
	assert.InDelta(t, 1, y.data[3]+y.data[5], 1e-6)

	// Test gradient
	x = Rand(2, 3)
	c := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	Mul(MaskedSoftmax(x, mask), c).Backward()
	dx := numericalDiff(func(x *Tensor) *Tensor { return Mul(MaskedSoftmax(x, mask), c) }, x)
	allClose(t, x.grad, dx)
}

func TestEmbedding(t *testing.T) {
	// (2,3) -> (2,3,2)
	x := NewTensor([]float32{0, 1, 0, 3, 0, 5}, 2, 3)
	w := NewTensor([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, 6, 2)
	y := Embedding(w, x)
	assert.Equal(t, []int{2, 3, 2}, y.shape)
	assert.Equal(t, []float32{0, 1, 2, 3, 0, 1, 6, 7, 0, 1, 10, 11}, y.data)

	// Test gradient
	y.Backward()
	assert.Nil(t, x.grad)
	assert.Equal(t, []float32{3, 3, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1}, w.grad.data)
}

func TestBCE(t *testing.T) {
	p := NewTensor([]float32{0.9, 0.2}, 2, 1)
	y := NewTensor([]float32{1, 0}, 2, 1)
	loss := BCE(p, y, 1e-7)
	assert.InDelta(t, 0.164252033486018, loss.data[0], 1e-5)

	// extreme probabilities stay finite
	p = NewTensor([]float32{0, 1}, 2, 1)
	loss = BCE(p, y, 1e-7)
	assert.False(t, math32.IsInf(loss.data[0], 0))
	assert.False(t, math32.IsNaN(loss.data[0]))
}

func TestReuseLeaf(t *testing.T) {
	// x + x
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := Add(x, x)
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{2, 2, 2, 2, 2, 2}, x.grad.data)
}

func TestReuseNode(t *testing.T) {
	// x^2 + x^2
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	temp := Mul(x, x)
	y := Add(temp, temp)
	assert.Equal(t, []float32{2, 8, 18, 32, 50, 72}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{4, 8, 12, 16, 20, 24}, x.grad.data)
}

func TestDependency(t *testing.T) {
	// x^2 + 2x^2
	x := NewTensor([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	temp := Mul(x, x)
	y := Add(temp, Mul(NewScalar(2), temp))
	assert.Equal(t, []float32{3, 12, 27, 48, 75, 108}, y.data)

	// Test gradient
	y.Backward()
	assert.Equal(t, []float32{6, 12, 18, 24, 30, 36}, x.grad.data)
}
