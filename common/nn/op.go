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

	"github.com/chewxy/math32"
)

type op interface {
	String() string
	forward(inputs ...*Tensor) *Tensor
	backward(dy *Tensor) []*Tensor
	inputsAndOutput() ([]*Tensor, *Tensor)
	setInputs(inputs ...*Tensor)
	setOutput(y *Tensor)
}

type base struct {
	inputs []*Tensor
	output *Tensor
}

func (b *base) inputsAndOutput() ([]*Tensor, *Tensor) {
	return b.inputs, b.output
}

func (b *base) setInputs(inputs ...*Tensor) {
	b.inputs = inputs
}

func (b *base) setOutput(y *Tensor) {
	b.output = y
}

func apply[T op](f T, inputs ...*Tensor) *Tensor {
	y := f.forward(inputs...)
	f.setInputs(inputs...)
	f.setOutput(y)
	y.op = f
	return y
}

// reduceSuffix sums dy into a tensor shaped like a broadcast suffix operand.
func reduceSuffix(dy *Tensor, shape []int, f func(i int) float32) *Tensor {
	gx := Zeros(shape...)
	wSize := len(gx.data)
	for i := range dy.data {
		gx.data[i%wSize] += f(i)
	}
	return gx
}

type add struct {
	base
}

func (a *add) String() string {
	return "Add"
}

func (a *add) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.add(inputs[1])
	return y
}

func (a *add) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx1 := reduceSuffix(dy, a.inputs[1].shape, func(i int) float32 { return dy.data[i] })
	return []*Tensor{gx0, gx1}
}

type sub struct {
	base
}

func (s *sub) String() string {
	return "Sub"
}

func (s *sub) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.sub(inputs[1])
	return y
}

func (s *sub) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx1 := reduceSuffix(dy, s.inputs[1].shape, func(i int) float32 { return -dy.data[i] })
	return []*Tensor{gx0, gx1}
}

type mul struct {
	base
}

func (m *mul) String() string {
	return "Mul"
}

func (m *mul) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.mul(inputs[1])
	return y
}

func (m *mul) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx0.mul(m.inputs[1])
	gx1 := reduceSuffix(dy, m.inputs[1].shape, func(i int) float32 { return dy.data[i] * m.inputs[0].data[i] })
	return []*Tensor{gx0, gx1}
}

type div struct {
	base
}

func (d *div) String() string {
	return "Div"
}

func (d *div) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.div(inputs[1])
	return y
}

func (d *div) backward(dy *Tensor) []*Tensor {
	x0, x1 := d.inputs[0], d.inputs[1]
	wSize := len(x1.data)
	gx0 := dy.clone()
	gx0.div(x1)
	gx1 := reduceSuffix(dy, x1.shape, func(i int) float32 {
		w := x1.data[i%wSize]
		return -dy.data[i] * x0.data[i] / (w * w)
	})
	return []*Tensor{gx0, gx1}
}

type neg struct {
	base
}

func (n *neg) String() string {
	return "Neg"
}

func (n *neg) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.neg()
	return y
}

func (n *neg) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	dx.neg()
	return []*Tensor{dx}
}

type exp struct {
	base
}

func (e *exp) String() string {
	return "Exp"
}

func (e *exp) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.exp()
	return y
}

func (e *exp) backward(dy *Tensor) []*Tensor {
	dx := e.output.clone()
	dx.mul(dy)
	return []*Tensor{dx}
}

type sqrt struct {
	base
}

func (s *sqrt) String() string {
	return "Sqrt"
}

func (s *sqrt) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	for i := range y.data {
		y.data[i] = math32.Sqrt(y.data[i])
	}
	return y
}

func (s *sqrt) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	for i := range dx.data {
		dx.data[i] *= 0.5 / s.output.data[i]
	}
	return []*Tensor{dx}
}

type log struct {
	base
}

func (l *log) String() string {
	return "Log"
}

func (l *log) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.log()
	return y
}

func (l *log) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	dx.div(l.inputs[0])
	return []*Tensor{dx}
}

type tanh struct {
	base
}

func (t *tanh) String() string {
	return "Tanh"
}

func (t *tanh) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.tanh()
	return y
}

func (t *tanh) backward(dy *Tensor) []*Tensor {
	// dx = dy * (1 - y^2)
	dx := dy.clone()
	for i, y := range t.output.data {
		dx.data[i] *= 1 - y*y
	}
	return []*Tensor{dx}
}

type sigmoid struct {
	base
}

func (s *sigmoid) String() string {
	return "Sigmoid"
}

func (s *sigmoid) forward(inputs ...*Tensor) *Tensor {
	// y = tanh(x * 0.5) * 0.5 + 0.5
	y := inputs[0].clone()
	y.mul(NewScalar(0.5))
	y.tanh()
	y.mul(NewScalar(0.5))
	y.add(NewScalar(0.5))
	return y
}

func (s *sigmoid) backward(dy *Tensor) []*Tensor {
	// dx = dy * y * (1 - y)
	dx := dy.clone()
	for i, y := range s.output.data {
		dx.data[i] *= y * (1 - y)
	}
	return []*Tensor{dx}
}

type relu struct {
	base
}

func (r *relu) String() string {
	return "ReLU"
}

func (r *relu) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.maximum(NewScalar(0))
	return y
}

func (r *relu) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	for i, x := range r.inputs[0].data {
		if x <= 0 {
			dx.data[i] = 0
		}
	}
	return []*Tensor{dx}
}

type clip struct {
	base
	low  float32
	high float32
}

func (c *clip) String() string {
	return "Clip"
}

func (c *clip) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	for i := range y.data {
		y.data[i] = math32.Min(math32.Max(y.data[i], c.low), c.high)
	}
	return y
}

func (c *clip) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	for i, x := range c.inputs[0].data {
		if x < c.low || x > c.high {
			dx.data[i] = 0
		}
	}
	return []*Tensor{dx}
}

type sum struct {
	base
}

func (s *sum) String() string {
	return "Sum"
}

func (s *sum) forward(inputs ...*Tensor) *Tensor {
	return NewScalar(inputs[0].sum())
}

func (s *sum) backward(dy *Tensor) []*Tensor {
	return []*Tensor{Full(dy.data[0], s.inputs[0].shape...)}
}

type mean struct {
	base
}

func (m *mean) String() string {
	return "Mean"
}

func (m *mean) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	return NewScalar(x.sum() / float32(len(x.data)))
}

func (m *mean) backward(dy *Tensor) []*Tensor {
	n := float32(len(m.inputs[0].data))
	return []*Tensor{Full(dy.data[0]/n, m.inputs[0].shape...)}
}

type matMul struct {
	base
}

func (m *matMul) String() string {
	return "MatMul"
}

func (m *matMul) forward(inputs ...*Tensor) *Tensor {
	return inputs[0].matMul(inputs[1], false, false)
}

func (m *matMul) backward(dy *Tensor) []*Tensor {
	dx0 := dy.matMul(m.inputs[1], false, true)
	dx1 := m.inputs[0].matMul(dy, true, false)
	return []*Tensor{dx0, dx1}
}

// concat joins matrices along the second axis.
type concat struct {
	base
}

func (c *concat) String() string {
	return "Concat"
}

func (c *concat) forward(inputs ...*Tensor) *Tensor {
	rows, cols := inputs[0].shape[0], 0
	for _, x := range inputs {
		cols += x.shape[1]
	}
	y := Zeros(rows, cols)
	offset := 0
	for _, x := range inputs {
		width := x.shape[1]
		for i := 0; i < rows; i++ {
			copy(y.data[i*cols+offset:i*cols+offset+width], x.data[i*width:(i+1)*width])
		}
		offset += width
	}
	return y
}

func (c *concat) backward(dy *Tensor) []*Tensor {
	rows, cols := dy.shape[0], dy.shape[1]
	grads := make([]*Tensor, len(c.inputs))
	offset := 0
	for k, x := range c.inputs {
		width := x.shape[1]
		gx := Zeros(x.shape...)
		for i := 0; i < rows; i++ {
			copy(gx.data[i*width:(i+1)*width], dy.data[i*cols+offset:i*cols+offset+width])
		}
		grads[k] = gx
		offset += width
	}
	return grads
}

// slice selects columns [begin, end) of a matrix.
type slice struct {
	base
	begin int
	end   int
}

func (s *slice) String() string {
	return "Slice"
}

func (s *slice) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	rows, cols, width := x.shape[0], x.shape[1], s.end-s.begin
	y := Zeros(rows, width)
	for i := 0; i < rows; i++ {
		copy(y.data[i*width:(i+1)*width], x.data[i*cols+s.begin:i*cols+s.end])
	}
	return y
}

func (s *slice) backward(dy *Tensor) []*Tensor {
	x := s.inputs[0]
	rows, cols, width := x.shape[0], x.shape[1], s.end-s.begin
	gx := Zeros(x.shape...)
	for i := 0; i < rows; i++ {
		copy(gx.data[i*cols+s.begin:i*cols+s.end], dy.data[i*width:(i+1)*width])
	}
	return []*Tensor{gx}
}

// scale multiplies each row of a matrix by the matching entry of a column vector.
type scale struct {
	base
}

func (s *scale) String() string {
	return "Scale"
}

func (s *scale) forward(inputs ...*Tensor) *Tensor {
	x, w := inputs[0], inputs[1]
	cols := x.shape[1]
	y := x.clone()
	for i := range y.data {
		y.data[i] *= w.data[i/cols]
	}
	return y
}

func (s *scale) backward(dy *Tensor) []*Tensor {
	x, w := s.inputs[0], s.inputs[1]
	cols := x.shape[1]
	gx := dy.clone()
	gw := Zeros(w.shape...)
	for i := range dy.data {
		gx.data[i] *= w.data[i/cols]
		gw.data[i/cols] += dy.data[i] * x.data[i]
	}
	return []*Tensor{gx, gw}
}

// where picks rows from the first input if the condition holds, otherwise from the second.
type where struct {
	base
	cond []bool
}

func (w *where) String() string {
	return "Where"
}

func (w *where) forward(inputs ...*Tensor) *Tensor {
	x, y := inputs[0], inputs[1]
	cols := x.shape[1]
	z := y.clone()
	for i, ok := range w.cond {
		if ok {
			copy(z.data[i*cols:(i+1)*cols], x.data[i*cols:(i+1)*cols])
		}
	}
	return z
}

func (w *where) backward(dy *Tensor) []*Tensor {
	cols := dy.shape[1]
	gx, gy := Zeros(dy.shape...), Zeros(dy.shape...)
	for i, ok := range w.cond {
		src := dy.data[i*cols : (i+1)*cols]
		if ok {
			copy(gx.data[i*cols:(i+1)*cols], src)
		} else {
			copy(gy.data[i*cols:(i+1)*cols], src)
		}
	}
	return []*Tensor{gx, gy}
}

// maskedSoftmax normalizes each row over its unmasked entries. Masked entries and
// rows without any unmasked entry are zero.
type maskedSoftmax struct {
	base
	mask []bool
}

func (m *maskedSoftmax) String() string {
	return "MaskedSoftmax"
}

func (m *maskedSoftmax) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	rows, cols := x.shape[0], x.shape[1]
	y := Zeros(x.shape...)
	for i := 0; i < rows; i++ {
		maxValue := math32.Inf(-1)
		for j := 0; j < cols; j++ {
			if m.mask[i*cols+j] {
				maxValue = math32.Max(maxValue, x.data[i*cols+j])
			}
		}
		if math32.IsInf(maxValue, -1) {
			continue
		}
		var total float32
		for j := 0; j < cols; j++ {
			if m.mask[i*cols+j] {
				e := math32.Exp(x.data[i*cols+j] - maxValue)
				y.data[i*cols+j] = e
				total += e
			}
		}
		for j := 0; j < cols; j++ {
			y.data[i*cols+j] /= total
		}
	}
	return y
}

func (m *maskedSoftmax) backward(dy *Tensor) []*Tensor {
	y := m.output
	rows, cols := y.shape[0], y.shape[1]
	dx := Zeros(y.shape...)
	for i := 0; i < rows; i++ {
		var dot float32
		for j := 0; j < cols; j++ {
			dot += dy.data[i*cols+j] * y.data[i*cols+j]
		}
		for j := 0; j < cols; j++ {
			dx.data[i*cols+j] = y.data[i*cols+j] * (dy.data[i*cols+j] - dot)
		}
	}
	return []*Tensor{dx}
}

type embedding struct {
	base
}

func (e *embedding) String() string {
	return "Embedding"
}

func (e *embedding) forward(inputs ...*Tensor) *Tensor {
	w, x := inputs[0], inputs[1]
	dim := numElements(w.shape[1:])
	shape := append(append([]int{}, x.shape...), w.shape[1:]...)
	y := Zeros(shape...)
	for i, index := range x.data {
		row := int(index)
		copy(y.data[i*dim:(i+1)*dim], w.data[row*dim:(row+1)*dim])
	}
	return y
}

func (e *embedding) backward(dy *Tensor) []*Tensor {
	w, x := e.inputs[0], e.inputs[1]
	dim := numElements(w.shape[1:])
	gw := Zeros(w.shape...)
	for i, index := range x.data {
		row := int(index)
		for j := 0; j < dim; j++ {
			gw.data[row*dim+j] += dy.data[i*dim+j]
		}
	}
	return []*Tensor{gw, nil}
}

func checkSuffix(x0, x1 *Tensor) {
	for i := 0; i < len(x1.shape); i++ {
		if x0.shape[len(x0.shape)-len(x1.shape)+i] != x1.shape[i] {
			panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
		}
	}
}

// Add returns the element-wise sum of two tensors. The shape of the smaller tensor must be a suffix sequence of the shape of the larger tensor.
func Add(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		x0, x1 = x1, x0
	}
	checkSuffix(x0, x1)
	return apply(&add{}, x0, x1)
}

// Sub returns the element-wise difference of two tensors. The shape of the smaller tensor must be a suffix sequence of the shape of the larger tensor.
func Sub(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		checkSuffix(x1, x0)
		return Neg(apply(&sub{}, x1, x0))
	}
	checkSuffix(x0, x1)
	return apply(&sub{}, x0, x1)
}

// Mul returns the element-wise product of two tensors. The shape of the smaller tensor must be a suffix sequence of the shape of the larger tensor.
func Mul(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		x0, x1 = x1, x0
	}
	checkSuffix(x0, x1)
	return apply(&mul{}, x0, x1)
}

// Div returns the element-wise division of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Div(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		panic("the divisor must not have more dimensions than the dividend")
	}
	checkSuffix(x0, x1)
	return apply(&div{}, x0, x1)
}

func Neg(x *Tensor) *Tensor {
	return apply(&neg{}, x)
}

// Exp returns the element-wise exponential of a tensor.
func Exp(x *Tensor) *Tensor {
	return apply(&exp{}, x)
}

// Sqrt returns the element-wise square root of a tensor.
func Sqrt(x *Tensor) *Tensor {
	return apply(&sqrt{}, x)
}

// Log returns the element-wise natural logarithm of a tensor.
func Log(x *Tensor) *Tensor {
	return apply(&log{}, x)
}

func Tanh(x *Tensor) *Tensor {
	return apply(&tanh{}, x)
}

func Sigmoid(x *Tensor) *Tensor {
	return apply(&sigmoid{}, x)
}

func ReLu(x *Tensor) *Tensor {
	return apply(&relu{}, x)
}

// Clip limits values into [low, high]. Gradients vanish outside the interval.
func Clip(x *Tensor, low, high float32) *Tensor {
	return apply(&clip{low: low, high: high}, x)
}

// Sum returns the sum of all elements in a tensor.
func Sum(x *Tensor) *Tensor {
	return apply(&sum{}, x)
}

// Mean returns the mean of all elements in a tensor.
func Mean(x *Tensor) *Tensor {
	return apply(&mean{}, x)
}

func MatMul(x, y *Tensor) *Tensor {
	return apply(&matMul{}, x, y)
}

// Concat joins matrices with the same number of rows along the second axis.
func Concat(inputs ...*Tensor) *Tensor {
	for _, x := range inputs {
		if len(x.shape) != 2 || x.shape[0] != inputs[0].shape[0] {
			panic(fmt.Sprintf("Concat requires matrices with %d rows, got %v", inputs[0].shape[0], x.shape))
		}
	}
	return apply(&concat{}, inputs...)
}

// Slice returns columns [begin, end) of a matrix.
func Slice(x *Tensor, begin, end int) *Tensor {
	if len(x.shape) != 2 || begin < 0 || end > x.shape[1] || begin > end {
		panic(fmt.Sprintf("invalid slice [%d, %d) of %v", begin, end, x.shape))
	}
	return apply(&slice{begin: begin, end: end}, x)
}

// Scale multiplies row i of x (B, D) by w[i] of w (B, 1).
func Scale(x, w *Tensor) *Tensor {
	if len(x.shape) != 2 || len(w.shape) != 2 || w.shape[0] != x.shape[0] || w.shape[1] != 1 {
		panic(fmt.Sprintf("Scale requires (B, D) and (B, 1), got %v and %v", x.shape, w.shape))
	}
	return apply(&scale{}, x, w)
}

// Where returns row i of x if cond[i] holds, otherwise row i of y.
func Where(cond []bool, x, y *Tensor) *Tensor {
	if len(x.shape) != 2 || !equalShape(x.shape, y.shape) || len(cond) != x.shape[0] {
		panic(fmt.Sprintf("Where requires %d rows, got %v and %v", len(cond), x.shape, y.shape))
	}
	return apply(&where{cond: cond}, x, y)
}

// MaskedSoftmax applies softmax to each row of x (B, T) over the entries whose mask
// (row-major, B*T) is true. Other entries are zero.
func MaskedSoftmax(x *Tensor, mask []bool) *Tensor {
	if len(x.shape) != 2 || len(mask) != len(x.data) {
		panic(fmt.Sprintf("MaskedSoftmax requires a matrix and %d mask entries, got %v", len(x.data), x.shape))
	}
	return apply(&maskedSoftmax{mask: mask}, x)
}

// Embedding looks up rows of w by the indices stored in x.
func Embedding(w, x *Tensor) *Tensor {
	return apply(&embedding{}, w, x)
}

// BCE returns the mean binary cross entropy between probabilities and labels.
// Probabilities are clipped by eps to keep the logarithm finite.
func BCE(p, y *Tensor, eps float32) *Tensor {
	p = Clip(p, eps, 1-eps)
	pos := Mul(y, Log(p))
	neg := Mul(Sub(NewScalar(1), y), Log(Sub(NewScalar(1), p)))
	return Neg(Mean(Add(pos, neg)))
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
