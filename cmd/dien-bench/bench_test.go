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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/gorse-io/dien/common/nn"
	"github.com/gorse-io/dien/config"
	"github.com/gorse-io/dien/model/interest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Model.Capacity = 5
	cfg.Model.EmbeddingDim = 4
	cfg.Model.AttentionHiddenSizes = []int{8}
	cfg.Model.AuxiliaryHiddenSizes = []int{8}
	cfg.Bench.NumUsers = 20
	cfg.Bench.NumItems = 50
	cfg.Bench.BatchSize = 8
	cfg.Bench.NumJobs = 2
	return cfg
}

func TestSynthesize(t *testing.T) {
	cfg := newTestConfig()
	data := Synthesize(&cfg.Bench, cfg.Model.Capacity, 0)
	assert.Equal(t, 20, data.Count())
	assert.LessOrEqual(t, data.GetItems().Count(), 51)
	for _, sequence := range data.GetSequences() {
		assert.LessOrEqual(t, len(sequence.History), 7)
		assert.Contains(t, []float32{0, 1}, sequence.Label)
	}
}

func TestBenchmark(t *testing.T) {
	cfg := newTestConfig()
	data := Synthesize(&cfg.Bench, cfg.Model.Capacity, 0)
	for _, backward := range []bool{false, true} {
		cfg.Bench.Backward = backward
		cfg.Bench.Epochs = 2
		for _, variant := range []interest.Variant{interest.GRU, interest.AUGRU} {
			result, err := Benchmark(context.Background(), cfg, data, variant)
			require.NoError(t, err)
			assert.Equal(t, variant, result.Variant)
			assert.Equal(t, int64(40), result.Sequences)
			assert.Greater(t, result.Loss, float32(0))
			assert.GreaterOrEqual(t, result.AUC, float32(0))
			assert.LessOrEqual(t, result.AUC, float32(1))
		}
	}

	cfg.Model.Capacity = 0
	_, err := Benchmark(context.Background(), cfg, data, interest.AGRU)
	assert.Error(t, err)
}

func TestBenchmark_SGD(t *testing.T) {
	cfg := newTestConfig()
	cfg.Bench.Backward = true
	cfg.Bench.Optimizer = "sgd"
	cfg.Bench.LearningRate = 0.01
	data := Synthesize(&cfg.Bench, cfg.Model.Capacity, 0)
	result, err := Benchmark(context.Background(), cfg, data, interest.AIGRU)
	require.NoError(t, err)
	assert.Equal(t, int64(20), result.Sequences)
	assert.Greater(t, result.Loss, float32(0))

	assert.IsType(t, &nn.SGD{}, newOptimizer(&cfg.Bench, nil))
	cfg.Bench.Optimizer = "adam"
	assert.IsType(t, &nn.Adam{}, newOptimizer(&cfg.Bench, nil))
}

func TestBenchmark_Cancel(t *testing.T) {
	cfg := newTestConfig()
	data := Synthesize(&cfg.Bench, cfg.Model.Capacity, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, backward := range []bool{false, true} {
		cfg.Bench.Backward = backward
		_, err := Benchmark(ctx, cfg, data, interest.AUGRU)
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestResult_Row(t *testing.T) {
	result := &Result{Variant: interest.AIGRU, Sequences: 300, Elapsed: 1500 * time.Millisecond, Loss: 0.25, AUC: 0.75}
	assert.Equal(t, []string{"AIGRU", "300", "1.5s", "200.0", "0.2500", "0.7500"}, result.Row())
}

func TestAUC(t *testing.T) {
	assert.Equal(t, float32(1), AUC([]float32{0.9, 0.8}, []float32{0.1, 0.2}))
	assert.Equal(t, float32(0), AUC([]float32{0.1, 0.2}, []float32{0.9, 0.8}))
	assert.Equal(t, float32(0.75), AUC([]float32{0.3, 0.8}, []float32{0.1, 0.5}))
	assert.Zero(t, AUC(nil, []float32{0.5}))
}
