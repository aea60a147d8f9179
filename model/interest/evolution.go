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

	"github.com/gorse-io/dien/common/nn"
	"github.com/samber/lo"
)

// EvolutionLayer extracts interest states from behaviors with a GRU and evolves
// them toward the target item with a second, attention-modulated recurrence.
type EvolutionLayer struct {
	variant   Variant
	normalize bool
	hiddenDim int
	extractor *GRUCell
	evolver   *GRUCell
	attention *AttentionScorer
}

func NewEvolutionLayer(rng *rand.Rand, variant Variant, embeddingDim, hiddenDim int, attention *AttentionScorer, normalize bool) *EvolutionLayer {
	return &EvolutionLayer{
		variant:   variant,
		normalize: normalize,
		hiddenDim: hiddenDim,
		extractor: NewGRUCell(rng, embeddingDim, hiddenDim),
		evolver:   NewGRUCell(rng, hiddenDim, hiddenDim),
		attention: attention,
	}
}

func (l *EvolutionLayer) Parameters() []*nn.Tensor {
	var params []*nn.Tensor
	params = append(params, l.extractor.Parameters()...)
	params = append(params, l.evolver.Parameters()...)
	return append(params, l.attention.Parameters()...)
}

// Extract runs the first-stage GRU over behaviors.
func (l *EvolutionLayer) Extract(behaviors []*nn.Tensor, mask *SequenceMask) []*nn.Tensor {
	return l.extractor.Run(behaviors, mask, nil, UpdateGate)
}

// Forward returns the interest vector, attention weights and the states of both stages.
func (l *EvolutionLayer) Forward(behaviors []*nn.Tensor, target *nn.Tensor, mask *SequenceMask) *Output {
	extracted := l.Extract(behaviors, mask)
	if l.variant == GRU {
		evolved := l.evolver.Run(extracted, mask, nil, UpdateGate)
		weights := l.attention.Score(target, evolved, mask, l.normalize)
		return &Output{
			Interest: Pool(weights, evolved),
			Weights:  weights,
			Stage1:   extracted,
			Stage2:   evolved,
		}
	}
	weights := l.attention.Score(target, extracted, mask, l.normalize)
	interest, evolved := l.Evolve(extracted, weights, mask)
	return &Output{
		Interest: interest,
		Weights:  weights,
		Stage1:   extracted,
		Stage2:   evolved,
	}
}

// Evolve runs the second stage over extracted states with the given attention
// weights and returns the interest vector along with every second-stage state.
func (l *EvolutionLayer) Evolve(extracted, weights []*nn.Tensor, mask *SequenceMask) (*nn.Tensor, []*nn.Tensor) {
	var evolved []*nn.Tensor
	switch l.variant {
	case GRU:
		evolved = l.evolver.Run(extracted, mask, nil, UpdateGate)
		return Pool(weights, evolved), evolved
	case AIGRU:
		scaled := lo.Map(extracted, func(g *nn.Tensor, t int) *nn.Tensor {
			return nn.Scale(g, weights[t])
		})
		evolved = l.evolver.Run(scaled, mask, nil, UpdateGate)
	default:
		evolved = l.evolver.Run(extracted, mask, weights, l.variant.gate())
	}
	return LastValid(evolved, mask), evolved
}

// LastValid picks the state at the last valid step of every example. Examples
// without valid steps get the zero state.
func LastValid(states []*nn.Tensor, mask *SequenceMask) *nn.Tensor {
	last := nn.Zeros(states[0].Shape()...)
	for t, state := range states {
		last = nn.Where(mask.Last(t), state, last)
	}
	return last
}
