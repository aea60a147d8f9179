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
	"fmt"
	"math/rand"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gorse-io/dien/common/floats"
)

type Tensor struct {
	data  []float32
	shape []int
	grad  *Tensor
	op    op
}

func NewTensor(data []float32, shape ...int) *Tensor {
	if numElements(shape) != len(data) {
		panic(fmt.Sprintf("shape %v does not match %d elements", shape, len(data)))
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

func NewScalar(data float32) *Tensor {
	return &Tensor{
		data:  []float32{data},
		shape: []int{},
	}
}

// Rand creates a tensor filled with uniform random values in [0, 1).
func Rand(shape ...int) *Tensor {
	data := make([]float32, numElements(shape))
	for i := range data {
		data[i] = rand.Float32()
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Normal creates a tensor filled with normal random values drawn from rng.
func Normal(rng *rand.Rand, mean, std float32, shape ...int) *Tensor {
	data := make([]float32, numElements(shape))
	for i := range data {
		data[i] = float32(rng.NormFloat64())*std + mean
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Ones creates a tensor filled with ones.
func Ones(shape ...int) *Tensor {
	data := make([]float32, numElements(shape))
	for i := range data {
		data[i] = 1
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape ...int) *Tensor {
	return &Tensor{
		data:  make([]float32, numElements(shape)),
		shape: shape,
	}
}

// Full creates a tensor filled with value.
func Full(value float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

func numElements(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// NoGrad detaches a tensor from the graph that produced it.
func (t *Tensor) NoGrad() *Tensor {
	if t.op != nil {
		t.op = nil
	}
	return t
}

func (t *Tensor) Shape() []int {
	return t.shape
}

func (t *Tensor) Data() []float32 {
	return t.data
}

// Get returns the element at the given indices.
func (t *Tensor) Get(indices ...int) float32 {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expect %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	for i, index := range indices {
		offset = offset*t.shape[i] + index
	}
	return t.data[offset]
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

func (t *Tensor) String() string {
	// Print scalar value
	if len(t.shape) == 0 {
		return fmt.Sprint(t.data[0])
	}

	builder := strings.Builder{}
	builder.WriteString("[")
	if len(t.data) <= 10 {
		for i := 0; i < len(t.data); i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			if i != len(t.data)-1 {
				builder.WriteString(", ")
			}
		}
	} else {
		for i := 0; i < 5; i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			builder.WriteString(", ")
		}
		builder.WriteString("..., ")
		for i := len(t.data) - 5; i < len(t.data); i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			if i != len(t.data)-1 {
				builder.WriteString(", ")
			}
		}
	}
	builder.WriteString("]")
	return builder.String()
}

// Backward computes gradients of t with respect to every tensor it depends on.
// Gradients of leaf tensors are accumulated across calls until cleared by an
// optimizer.
func (t *Tensor) Backward() {
	// sort nodes topologically so that each node is visited after all its consumers
	var order []*Tensor
	visited := make(map[*Tensor]struct{})
	var visit func(v *Tensor)
	visit = func(v *Tensor) {
		if _, ok := visited[v]; ok {
			return
		}
		visited[v] = struct{}{}
		if v.op != nil {
			inputs, _ := v.op.inputsAndOutput()
			for _, input := range inputs {
				visit(input)
			}
		}
		order = append(order, v)
	}
	visit(t)

	// intermediate gradients belong to this pass only
	for _, v := range order {
		if v.op != nil {
			v.grad = nil
		}
	}
	t.grad = Ones(t.shape...)
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		if v.op == nil || v.grad == nil {
			continue
		}
		inputs, _ := v.op.inputsAndOutput()
		grads := v.op.backward(v.grad)
		for j := range grads {
			if grads[j] == nil {
				continue
			}
			if inputs[j].grad == nil {
				inputs[j].grad = grads[j]
			} else {
				inputs[j].grad.add(grads[j])
			}
		}
	}
}

func (t *Tensor) clone() *Tensor {
	newData := make([]float32, len(t.data))
	copy(newData, t.data)
	return &Tensor{
		data:  newData,
		shape: t.shape,
	}
}

func (t *Tensor) add(other *Tensor) *Tensor {
	if len(t.data) == len(other.data) {
		floats.Add(t.data, other.data)
		return t
	}
	wSize := len(other.data)
	for i := range t.data {
		t.data[i] += other.data[i%wSize]
	}
	return t
}

func (t *Tensor) sub(other *Tensor) *Tensor {
	if len(t.data) == len(other.data) {
		floats.Sub(t.data, other.data)
		return t
	}
	wSize := len(other.data)
	for i := range t.data {
		t.data[i] -= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) mul(other *Tensor) *Tensor {
	if len(t.data) == len(other.data) {
		floats.MulTo(t.data, other.data, t.data)
		return t
	}
	if len(other.data) == 1 {
		floats.MulConst(t.data, other.data[0])
		return t
	}
	wSize := len(other.data)
	for i := range t.data {
		t.data[i] *= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) div(other *Tensor) *Tensor {
	wSize := len(other.data)
	for i := range t.data {
		t.data[i] /= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) neg() *Tensor {
	for i := range t.data {
		t.data[i] = -t.data[i]
	}
	return t
}

func (t *Tensor) exp() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Exp(t.data[i])
	}
	return t
}

func (t *Tensor) log() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Log(t.data[i])
	}
	return t
}

func (t *Tensor) tanh() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Tanh(t.data[i])
	}
	return t
}

func (t *Tensor) maximum(other *Tensor) *Tensor {
	wSize := len(other.data)
	for i := range t.data {
		t.data[i] = math32.Max(t.data[i], other.data[i%wSize])
	}
	return t
}

func (t *Tensor) sum() float32 {
	sum := float32(0)
	for i := range t.data {
		sum += t.data[i]
	}
	return sum
}

// matMul multiplies two matrices, optionally transposing either operand.
func (t *Tensor) matMul(other *Tensor, transpose1, transpose2 bool) *Tensor {
	if len(t.shape) != 2 || len(other.shape) != 2 {
		panic("matMul requires two matrices")
	}
	m, k := t.shape[0], t.shape[1]
	if transpose1 {
		m, k = k, m
	}
	k2, n := other.shape[0], other.shape[1]
	if transpose2 {
		k2, n = n, k2
	}
	if k != k2 {
		panic(fmt.Sprintf("matMul shape mismatch: %v x %v", t.shape, other.shape))
	}
	y := Zeros(m, n)
	floats.MM(transpose1, transpose2, m, n, k, t.data, t.shape[1], other.data, other.shape[1], y.data, n)
	return y
}
