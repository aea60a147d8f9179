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

import "modernc.org/mathutil"

// ClampLength limits a valid length into [0, capacity].
func ClampLength(length, capacity int) int {
	return mathutil.Max(0, mathutil.Min(length, capacity))
}

// Mask returns the validity vector of a sequence: mask[i] is true iff i < length.
// Lengths outside [0, capacity] are clamped.
func Mask(length, capacity int) []bool {
	length = ClampLength(length, capacity)
	mask := make([]bool, capacity)
	for i := 0; i < length; i++ {
		mask[i] = true
	}
	return mask
}

// SequenceMask holds the validity of every (example, step) pair of a batch.
type SequenceMask struct {
	lengths  []int
	capacity int
	steps    [][]bool // steps[t][b]
}

// NewSequenceMask builds the mask of a batch. Lengths are clamped into [0, capacity].
func NewSequenceMask(lengths []int, capacity int) *SequenceMask {
	m := &SequenceMask{
		lengths:  make([]int, len(lengths)),
		capacity: capacity,
		steps:    make([][]bool, capacity),
	}
	for b, length := range lengths {
		m.lengths[b] = ClampLength(length, capacity)
	}
	for t := range m.steps {
		m.steps[t] = make([]bool, len(lengths))
		for b, length := range m.lengths {
			m.steps[t][b] = t < length
		}
	}
	return m
}

func (m *SequenceMask) BatchSize() int {
	return len(m.lengths)
}

func (m *SequenceMask) Capacity() int {
	return m.capacity
}

// Length returns the clamped valid length of example b.
func (m *SequenceMask) Length(b int) int {
	return m.lengths[b]
}

// Step returns which examples are valid at step t.
func (m *SequenceMask) Step(t int) []bool {
	return m.steps[t]
}

// Transition returns which examples have a real next item after step t.
func (m *SequenceMask) Transition(t int) []bool {
	if t+1 >= m.capacity {
		return make([]bool, len(m.lengths))
	}
	return m.steps[t+1]
}

// Last returns which examples end at step t.
func (m *SequenceMask) Last(t int) []bool {
	last := make([]bool, len(m.lengths))
	for b, length := range m.lengths {
		last[b] = length-1 == t
	}
	return last
}

// Flatten returns the mask in row-major (batch, step) order.
func (m *SequenceMask) Flatten() []bool {
	flat := make([]bool, 0, len(m.lengths)*m.capacity)
	for _, length := range m.lengths {
		for t := 0; t < m.capacity; t++ {
			flat = append(flat, t < length)
		}
	}
	return flat
}

// NumTransitions counts (example, step) pairs followed by a real next item.
func (m *SequenceMask) NumTransitions() int {
	n := 0
	for _, length := range m.lengths {
		n += mathutil.Max(length-1, 0)
	}
	return n
}
