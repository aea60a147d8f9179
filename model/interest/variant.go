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
	"fmt"
	"strings"

	"github.com/gorse-io/dien/common/nn"
	"github.com/juju/errors"
)

// Variant selects how the second recurrent stage uses attention.
type Variant int

const (
	// GRU runs a plain GRU and uses attention for pooling only.
	GRU Variant = iota
	// AIGRU scales stage-2 inputs by attention.
	AIGRU
	// AGRU replaces the update gate with attention.
	AGRU
	// AUGRU scales the update gate by attention.
	AUGRU
)

var variantNames = []string{"GRU", "AIGRU", "AGRU", "AUGRU"}

func (v Variant) String() string {
	if v < GRU || v > AUGRU {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant parses a variant name. Names are case-insensitive.
func ParseVariant(name string) (Variant, error) {
	for i, variantName := range variantNames {
		if strings.EqualFold(name, variantName) {
			return Variant(i), nil
		}
	}
	return 0, errors.NotValidf("variant %q (expect one of %s)", name, strings.Join(variantNames, "|"))
}

func (v Variant) MarshalText() ([]byte, error) {
	if v < GRU || v > AUGRU {
		return nil, errors.NotValidf("variant %d", int(v))
	}
	return []byte(variantNames[v]), nil
}

func (v *Variant) UnmarshalText(text []byte) error {
	variant, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = variant
	return nil
}

// gate returns how the stage-2 cell blends its state for this variant.
func (v Variant) gate() Gate {
	switch v {
	case AGRU:
		return AttentionGate
	case AUGRU:
		return AttentionUpdateGate
	default:
		return UpdateGate
	}
}

var activations = map[string]func(size int) nn.Layer{
	"sigmoid": nn.Elementwise(nn.NewSigmoid),
	"relu":    nn.Elementwise(nn.NewReLU),
	"tanh":    nn.Elementwise(nn.NewTanh),
	"dice":    nn.NewDice,
}

func parseActivation(name string) (func(size int) nn.Layer, error) {
	if activation, ok := activations[strings.ToLower(name)]; ok {
		return activation, nil
	}
	return nil, errors.NotValidf("activation %q", name)
}
