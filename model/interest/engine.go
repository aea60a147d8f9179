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

// Package interest models how a user's interest evolves along a behavior
// sequence. Behaviors first pass through a GRU that extracts one interest state
// per step. A second recurrence then evolves those states toward a target item,
// modulated by attention between the target and every state. An auxiliary
// network supervises the states with the next behavior against sampled negatives.
//
// Sequences are time-major: a batch of B sequences padded to capacity T is a
// slice of T tensors shaped (B, D).
package interest

import (
	"context"

	"github.com/gorse-io/dien/common/log"
	"github.com/gorse-io/dien/common/nn"
	"github.com/gorse-io/dien/common/parallel"
	"github.com/gorse-io/dien/common/util"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type Config struct {
	Variant             Variant
	Capacity            int
	EmbeddingDim        int
	HiddenDim           int // 0 means twice the embedding dimension
	UseNegativeSampling bool
	AuxLossWeight       float32
	// AttentionNormalize overrides whether attention weights are softmax normalized.
	// If nil, GRU and AIGRU normalize while AGRU and AUGRU use raw scores.
	AttentionNormalize   *bool
	AttentionHiddenSizes []int
	AttentionActivation  string
	AuxiliaryHiddenSizes []int
	Seed                 int64
}

func DefaultConfig() Config {
	return Config{
		Variant:              AUGRU,
		Capacity:             50,
		EmbeddingDim:         8,
		AuxLossWeight:        1,
		AttentionHiddenSizes: []int{64, 16},
		AttentionActivation:  "sigmoid",
		AuxiliaryHiddenSizes: []int{100, 50},
	}
}

// Hidden returns the hidden state dimension.
func (c *Config) Hidden() int {
	if c.HiddenDim == 0 {
		return 2 * c.EmbeddingDim
	}
	return c.HiddenDim
}

// Normalize reports whether attention weights are softmax normalized.
func (c *Config) Normalize() bool {
	if c.AttentionNormalize != nil {
		return *c.AttentionNormalize
	}
	return c.Variant == GRU || c.Variant == AIGRU
}

func (c *Config) Validate() error {
	if c.Variant < GRU || c.Variant > AUGRU {
		return errors.NotValidf("variant %d", int(c.Variant))
	}
	if c.Capacity < 1 {
		return errors.NotValidf("capacity %d", c.Capacity)
	}
	if c.EmbeddingDim < 1 {
		return errors.NotValidf("embedding dimension %d", c.EmbeddingDim)
	}
	if c.HiddenDim < 0 {
		return errors.NotValidf("hidden dimension %d", c.HiddenDim)
	}
	if c.AuxLossWeight < 0 {
		return errors.NotValidf("auxiliary loss weight %v", c.AuxLossWeight)
	}
	if lo.SomeBy(c.AttentionHiddenSizes, func(size int) bool { return size < 1 }) {
		return errors.NotValidf("attention hidden sizes %v", c.AttentionHiddenSizes)
	}
	if lo.SomeBy(c.AuxiliaryHiddenSizes, func(size int) bool { return size < 1 }) {
		return errors.NotValidf("auxiliary hidden sizes %v", c.AuxiliaryHiddenSizes)
	}
	if _, err := parseActivation(c.AttentionActivation); err != nil {
		return err
	}
	return nil
}

// Input is a batch of B behavior sequences padded to the engine capacity T.
type Input struct {
	// Behaviors holds T steps of item embeddings shaped (B, E).
	Behaviors []*nn.Tensor
	// Target holds the target item embeddings shaped (B, E).
	Target *nn.Tensor
	// Lengths holds the valid length of every sequence. Lengths outside [0, T]
	// are clamped.
	Lengths []int
	// Negatives holds T-1 steps of sampled item embeddings shaped (B, E).
	// Negatives[t] replaces Behaviors[t+1]. Only read with negative sampling.
	Negatives []*nn.Tensor
}

type Output struct {
	// Interest is the interest vector shaped (B, H).
	Interest *nn.Tensor
	// Weights holds T attention weights shaped (B, 1).
	Weights []*nn.Tensor
	// Stage1 holds the T extracted interest states.
	Stage1 []*nn.Tensor
	// Stage2 holds the T evolved interest states.
	Stage2 []*nn.Tensor
	// AuxLoss is the auxiliary loss, nil without negative sampling.
	AuxLoss *nn.Tensor

	auxLossWeight float32
}

// Objective adds the weighted auxiliary loss to the loss of a prediction head.
func (o *Output) Objective(loss *nn.Tensor) *nn.Tensor {
	if o.AuxLoss == nil {
		return loss
	}
	return nn.Add(loss, nn.Mul(o.AuxLoss, nn.NewScalar(o.auxLossWeight)))
}

// Engine composes the interest evolution layer and the auxiliary network.
// Parameters are only read by Forward, so an engine may evaluate different
// batches from multiple goroutines.
type Engine struct {
	config    Config
	layer     *EvolutionLayer
	auxiliary *AuxiliaryNet
}

func NewEngine(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	activation, _ := parseActivation(config.AttentionActivation)
	rng := util.NewRand(config.Seed)
	hiddenDim := config.Hidden()
	attention := NewAttentionScorer(rng, config.EmbeddingDim, hiddenDim, config.AttentionHiddenSizes, activation)
	e := &Engine{
		config: config,
		layer:  NewEvolutionLayer(rng, config.Variant, config.EmbeddingDim, hiddenDim, attention, config.Normalize()),
	}
	// created last so that the other parameters do not depend on negative sampling
	if config.UseNegativeSampling {
		e.auxiliary = NewAuxiliaryNet(rng, hiddenDim, config.EmbeddingDim, config.AuxiliaryHiddenSizes)
	}
	log.Logger().Debug("create interest evolution engine",
		zap.Stringer("variant", config.Variant),
		zap.Int("capacity", config.Capacity),
		zap.Int("embedding_dim", config.EmbeddingDim),
		zap.Int("hidden_dim", hiddenDim),
		zap.Bool("attention_normalize", config.Normalize()),
		zap.Bool("use_negative_sampling", config.UseNegativeSampling))
	return e, nil
}

func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) Parameters() []*nn.Tensor {
	params := e.layer.Parameters()
	if e.auxiliary != nil {
		params = append(params, e.auxiliary.Parameters()...)
	}
	return params
}

// Forward evolves the interest of every sequence in a batch.
func (e *Engine) Forward(input *Input) (*Output, error) {
	if err := e.check(input); err != nil {
		return nil, errors.Trace(err)
	}
	mask := NewSequenceMask(input.Lengths, e.config.Capacity)
	output := e.layer.Forward(input.Behaviors, input.Target, mask)
	if e.auxiliary != nil {
		output.AuxLoss = e.auxiliary.Loss(output.Stage2, input.Behaviors, input.Negatives, mask)
		output.auxLossWeight = e.config.AuxLossWeight
	}
	return output, nil
}

// Evolve runs the second stage over extracted states (B, H) with explicit attention
// weights (B, 1).
func (e *Engine) Evolve(extracted, weights []*nn.Tensor, lengths []int) (*nn.Tensor, []*nn.Tensor, error) {
	if len(extracted) != e.config.Capacity || len(weights) != e.config.Capacity {
		return nil, nil, errors.NotValidf("%d states and %d weights for capacity %d",
			len(extracted), len(weights), e.config.Capacity)
	}
	batchSize, hiddenDim := len(lengths), e.config.Hidden()
	if batchSize == 0 {
		return nil, nil, errors.NotValidf("empty batch")
	}
	for t := range extracted {
		if !isMatrix(extracted[t], batchSize, hiddenDim) {
			return nil, nil, errors.NotValidf("states at step %d (expect (%d, %d))", t, batchSize, hiddenDim)
		}
		if !isMatrix(weights[t], batchSize, 1) {
			return nil, nil, errors.NotValidf("weights at step %d (expect (%d, 1))", t, batchSize)
		}
	}
	interest, evolved := e.layer.Evolve(extracted, weights, NewSequenceMask(lengths, e.config.Capacity))
	return interest, evolved, nil
}

// PredictBatches evaluates batches concurrently and returns their interest vectors.
func (e *Engine) PredictBatches(ctx context.Context, inputs []*Input, nWorkers int) ([]*nn.Tensor, error) {
	interests := make([]*nn.Tensor, len(inputs))
	err := parallel.Parallel(ctx, len(inputs), nWorkers, func(_, jobId int) error {
		output, err := e.Forward(inputs[jobId])
		if err != nil {
			return errors.Annotatef(err, "batch %d", jobId)
		}
		interests[jobId] = output.Interest.NoGrad()
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return interests, nil
}

func isMatrix(x *nn.Tensor, rows, columns int) bool {
	return x != nil && len(x.Shape()) == 2 && x.Shape()[0] == rows && x.Shape()[1] == columns
}

func (e *Engine) check(input *Input) error {
	capacity, embeddingDim := e.config.Capacity, e.config.EmbeddingDim
	if len(input.Behaviors) != capacity {
		return errors.NotValidf("%d behavior steps for capacity %d", len(input.Behaviors), capacity)
	}
	batchSize := len(input.Lengths)
	if batchSize == 0 {
		return errors.NotValidf("empty batch")
	}
	matches := func(x *nn.Tensor) bool {
		return isMatrix(x, batchSize, embeddingDim)
	}
	for t, x := range input.Behaviors {
		if !matches(x) {
			return errors.NotValidf("behaviors at step %d (expect (%d, %d))", t, batchSize, embeddingDim)
		}
	}
	if !matches(input.Target) {
		return errors.NotValidf("target (expect (%d, %d))", batchSize, embeddingDim)
	}
	if e.auxiliary != nil {
		if len(input.Negatives) != capacity-1 {
			return errors.NotValidf("%d negative steps for capacity %d", len(input.Negatives), capacity)
		}
		for t, x := range input.Negatives {
			if !matches(x) {
				return errors.NotValidf("negatives at step %d (expect (%d, %d))", t, batchSize, embeddingDim)
			}
		}
	}
	return nil
}
