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
	"github.com/samber/lo"
)

const probabilityEpsilon = 1e-7

// AuxiliaryNet supervises every hidden state with the next behavior against a
// sampled negative. One classifier is shared by clicked and non-clicked items.
type AuxiliaryNet struct {
	classifier *nn.Sequential
}

func NewAuxiliaryNet(rng *rand.Rand, hiddenDim, embeddingDim int, hiddenSizes []int) *AuxiliaryNet {
	classifier := nn.NewMLP(rng, hiddenDim+embeddingDim, append(slices.Clone(hiddenSizes), 1), nn.Elementwise(nn.NewSigmoid))
	classifier.Layers = append(classifier.Layers, nn.NewSigmoid())
	return &AuxiliaryNet{classifier: classifier}
}

func (n *AuxiliaryNet) Parameters() []*nn.Tensor {
	return n.classifier.Parameters()
}

// Probability returns the probability (B, 1) that state h is followed by item x.
func (n *AuxiliaryNet) Probability(h, x *nn.Tensor) *nn.Tensor {
	return n.classifier.Forward(nn.Concat(h, x))
}

// Loss averages the auxiliary loss over every (example, step) pair followed by a
// real behavior. negatives[t] replaces behaviors[t+1]. It is 0 if there are no
// such pairs.
func (n *AuxiliaryNet) Loss(states, behaviors, negatives []*nn.Tensor, mask *SequenceMask) *nn.Tensor {
	count := mask.NumTransitions()
	if count == 0 {
		return nn.NewScalar(0)
	}
	zero := nn.Zeros(mask.BatchSize(), 1)
	var total *nn.Tensor
	for t := 0; t+1 < mask.Capacity(); t++ {
		valid := mask.Transition(t)
		if !lo.Contains(valid, true) {
			continue
		}
		pClick := n.Probability(states[t], behaviors[t+1])
		pNoClick := n.Probability(states[t], negatives[t])
		loss := nn.Sum(nn.Where(valid, transitionLoss(pClick, pNoClick), zero))
		if total == nil {
			total = loss
		} else {
			total = nn.Add(total, loss)
		}
	}
	return nn.Div(total, nn.NewScalar(float32(count)))
}

// transitionLoss returns -log(pClick) - log(1-pNoClick) with clamped probabilities.
func transitionLoss(pClick, pNoClick *nn.Tensor) *nn.Tensor {
	pClick = nn.Clip(pClick, probabilityEpsilon, 1-probabilityEpsilon)
	pNoClick = nn.Clip(pNoClick, probabilityEpsilon, 1-probabilityEpsilon)
	return nn.Neg(nn.Add(nn.Log(pClick), nn.Log(nn.Sub(nn.NewScalar(1), pNoClick))))
}
