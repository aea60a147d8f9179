// Copyright 2025 gorse Project Authors
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

package dataset

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/dien/common/parallel"
	"github.com/gorse-io/dien/common/util"
	"github.com/samber/lo"
	"modernc.org/mathutil"
)

// Batch holds sequences as item ids padded to a fixed capacity T. Behaviors and
// negatives are time-major.
type Batch struct {
	Behaviors [][]int32 // T steps of B ids
	Negatives [][]int32 // T-1 steps of B ids, Negatives[t] replaces Behaviors[t+1]
	Targets   []int32
	Lengths   []int
	Labels    []float32
}

func (b *Batch) Size() int {
	return len(b.Targets)
}

// SequenceBuilder pads sequences into batches and samples negative items.
type SequenceBuilder struct {
	capacity int
	items    *ItemDict
	rng      util.RandomGenerator
}

func NewSequenceBuilder(items *ItemDict, capacity int, seed int64) *SequenceBuilder {
	return &SequenceBuilder{
		capacity: capacity,
		items:    items,
		rng:      util.NewRandomGenerator(seed),
	}
}

// Build converts sequences to a batch. Histories longer than the capacity keep
// their latest behaviors and unknown items are dropped from histories. Unknown
// targets map to padding.
func (b *SequenceBuilder) Build(sequences []Sequence) *Batch {
	batch := &Batch{
		Behaviors: make([][]int32, b.capacity),
		Negatives: make([][]int32, mathutil.Max(b.capacity-1, 0)),
		Targets:   make([]int32, len(sequences)),
		Lengths:   make([]int, len(sequences)),
		Labels:    make([]float32, len(sequences)),
	}
	for t := range batch.Behaviors {
		batch.Behaviors[t] = make([]int32, len(sequences))
	}
	for t := range batch.Negatives {
		batch.Negatives[t] = make([]int32, len(sequences))
	}
	for i, sequence := range sequences {
		history := lo.FilterMap(sequence.History, func(item string, _ int) (int32, bool) {
			return b.items.Lookup(item)
		})
		batch.Targets[i], _ = b.items.Lookup(sequence.Target)
		batch.Labels[i] = sequence.Label

		recent := history[mathutil.Max(len(history)-b.capacity, 0):]
		batch.Lengths[i] = len(recent)
		for t, item := range recent {
			batch.Behaviors[t][i] = item
		}
		for t, item := range b.sampleNegatives(history, batch.Targets[i], len(recent)-1) {
			batch.Negatives[t][i] = item
		}
	}
	return batch
}

// Batches splits sequences into batches of at most batchSize.
func (b *SequenceBuilder) Batches(sequences []Sequence, batchSize int) []*Batch {
	return lo.Map(parallel.Chunks(len(sequences), batchSize), func(chunk [2]int, _ int) *Batch {
		return b.Build(sequences[chunk[0]:chunk[1]])
	})
}

// sampleNegatives draws n items the user has never interacted with. Candidates are
// reused if there are not enough of them.
func (b *SequenceBuilder) sampleNegatives(history []int32, target int32, n int) []int32 {
	exclude := mapset.NewThreadUnsafeSet(history...)
	exclude.Add(target)
	return b.rng.Negatives(PaddingId+1, int32(b.items.Count()), n, exclude)
}
