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
	"github.com/gorse-io/dien/common/nn"
	"github.com/gorse-io/dien/common/util"
	"github.com/gorse-io/dien/model/interest"
	"github.com/samber/lo"
)

// EmbeddingTable maps item ids to trainable embeddings. The padding row starts at zero.
type EmbeddingTable struct {
	weights *nn.Tensor
	dim     int
}

func NewEmbeddingTable(rng util.RandomGenerator, count, dim int, std float32) *EmbeddingTable {
	data := rng.NormalVector(count*dim, 0, std)
	clear(data[:dim])
	return &EmbeddingTable{
		weights: nn.NewTensor(data, count, dim),
		dim:     dim,
	}
}

func (e *EmbeddingTable) Dim() int {
	return e.dim
}

func (e *EmbeddingTable) Parameters() []*nn.Tensor {
	return []*nn.Tensor{e.weights}
}

// Lookup returns the embeddings (B, E) of B items.
func (e *EmbeddingTable) Lookup(ids []int32) *nn.Tensor {
	indices := lo.Map(ids, func(id int32, _ int) float32 { return float32(id) })
	return nn.Embedding(e.weights, nn.NewTensor(indices, len(ids)))
}

// Input looks up every id of a batch.
func (e *EmbeddingTable) Input(batch *Batch) *interest.Input {
	return &interest.Input{
		Behaviors: lo.Map(batch.Behaviors, func(ids []int32, _ int) *nn.Tensor { return e.Lookup(ids) }),
		Target:    e.Lookup(batch.Targets),
		Lengths:   batch.Lengths,
		Negatives: lo.Map(batch.Negatives, func(ids []int32, _ int) *nn.Tensor { return e.Lookup(ids) }),
	}
}

// Labels returns the labels (B, 1) of a batch.
func Labels(batch *Batch) *nn.Tensor {
	return nn.NewTensor(batch.Labels, batch.Size(), 1)
}
