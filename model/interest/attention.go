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
	"slices"

	"github.com/gorse-io/dien/common/nn"
)

// AttentionScorer scores every step of a key sequence against a query by a
// feed-forward network over concat(q, k, q⊙k, q-k).
type AttentionScorer struct {
	projection *nn.Linear // maps the query to the key dimension, nil if they match
	network    *nn.Sequential
}

func NewAttentionScorer(rng *rand.Rand, queryDim, keyDim int, hiddenSizes []int, activation func(size int) nn.Layer) *AttentionScorer {
	s := &AttentionScorer{
		network: nn.NewMLP(rng, 4*keyDim, append(slices.Clone(hiddenSizes), 1), activation),
	}
	if queryDim != keyDim {
		s.projection = nn.NewLinear(rng, queryDim, keyDim)
	}
	return s
}

func (s *AttentionScorer) Parameters() []*nn.Tensor {
	var params []*nn.Tensor
	if s.projection != nil {
		params = append(params, s.projection.Parameters()...)
	}
	return append(params, s.network.Parameters()...)
}

// Score returns one weight (B, 1) per step of keys. Weights of invalid steps are 0.
// If normalize is set, the weights of every example are a softmax over its valid
// steps, and an example without valid steps gets all zeros.
func (s *AttentionScorer) Score(query *nn.Tensor, keys []*nn.Tensor, mask *SequenceMask, normalize bool) []*nn.Tensor {
	if s.projection != nil {
		query = s.projection.Forward(query)
	}
	scores := make([]*nn.Tensor, len(keys))
	for t, key := range keys {
		features := nn.Concat(query, key, nn.Mul(query, key), nn.Sub(query, key))
		scores[t] = s.network.Forward(features)
	}

	weights := make([]*nn.Tensor, len(keys))
	if normalize {
		probs := nn.MaskedSoftmax(nn.Concat(scores...), mask.Flatten())
		for t := range scores {
			weights[t] = nn.Slice(probs, t, t+1)
		}
	} else {
		zero := nn.Zeros(mask.BatchSize(), 1)
		for t, score := range scores {
			weights[t] = nn.Where(mask.Step(t), score, zero)
		}
	}
	return weights
}

// Pool sums values weighted by per-step weights.
func Pool(weights, values []*nn.Tensor) *nn.Tensor {
	pooled := nn.Scale(values[0], weights[0])
	for t := 1; t < len(values); t++ {
		pooled = nn.Add(pooled, nn.Scale(values[t], weights[t]))
	}
	return pooled
}
