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
	"fmt"
	"sort"
	"time"

	"github.com/gorse-io/dien/common/nn"
	"github.com/gorse-io/dien/common/parallel"
	"github.com/gorse-io/dien/common/util"
	"github.com/gorse-io/dien/config"
	"github.com/gorse-io/dien/dataset"
	"github.com/gorse-io/dien/model/interest"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/atomic"
	"modernc.org/sortutil"
)

// Synthesize generates random behavior sequences. A history may exceed the capacity.
func Synthesize(bench *config.BenchConfig, capacity int, seed int64) *dataset.Dataset {
	rng := util.NewRandomGenerator(seed)
	data := dataset.NewDataset(bench.NumUsers)
	item := func() string {
		return fmt.Sprintf("i%d", rng.Intn(bench.NumItems))
	}
	for i := 0; i < bench.NumUsers; i++ {
		history := make([]string, rng.Intn(capacity+capacity/2+1))
		for j := range history {
			history[j] = item()
		}
		data.AddSequence(dataset.Sequence{
			User:    fmt.Sprintf("u%d", i),
			History: history,
			Target:  item(),
			Label:   float32(rng.Intn(2)),
		})
	}
	return data
}

type Result struct {
	Variant   interest.Variant
	Sequences int64
	Elapsed   time.Duration
	// Loss is the mean objective with backward passes, otherwise the mean auxiliary loss.
	Loss float32
	// AUC of the stand-in head over the last epoch. Only measured with backward passes.
	AUC float32
}

func (r *Result) Row() []string {
	return []string{
		r.Variant.String(),
		fmt.Sprint(r.Sequences),
		r.Elapsed.Round(time.Millisecond).String(),
		fmt.Sprintf("%.1f", float64(r.Sequences)/r.Elapsed.Seconds()),
		fmt.Sprintf("%.4f", r.Loss),
		fmt.Sprintf("%.4f", r.AUC),
	}
}

// Benchmark runs the configured number of epochs over data with a variant.
func Benchmark(ctx context.Context, cfg *config.Config, data *dataset.Dataset, variant interest.Variant) (*Result, error) {
	modelConfig := cfg.Model
	modelConfig.Variant = variant
	engine, err := interest.NewEngine(modelConfig.Interest())
	if err != nil {
		return nil, errors.Trace(err)
	}
	builder := dataset.NewSequenceBuilder(data.GetItems(), modelConfig.Capacity, modelConfig.Seed)
	batches := builder.Batches(data.GetSequences(), cfg.Bench.BatchSize)
	rng := util.NewRandomGenerator(modelConfig.Seed)
	embeddings := dataset.NewEmbeddingTable(rng, data.GetItems().Count(), modelConfig.EmbeddingDim, cfg.Bench.InitStd)

	var (
		sequences atomic.Int64
		loss      atomic.Float32
		steps     atomic.Int64
	)
	var posPrediction, negPrediction []float32
	bar := progressbar.Default(int64(cfg.Bench.Epochs*len(batches)), variant.String())
	start := time.Now()
	if cfg.Bench.Backward {
		// a logistic regression over the interest and the target stands in for the prediction head
		engineConfig := engine.Config()
		head := nn.NewLinear(rng.Rand, engineConfig.Hidden()+modelConfig.EmbeddingDim, 1)
		params := append(engine.Parameters(), embeddings.Parameters()...)
		optimizer := newOptimizer(&cfg.Bench, append(params, head.Parameters()...))
		for epoch := 0; epoch < cfg.Bench.Epochs; epoch++ {
			for _, batch := range batches {
				if err = ctx.Err(); err != nil {
					return nil, errors.Trace(err)
				}
				input := embeddings.Input(batch)
				output, err := engine.Forward(input)
				if err != nil {
					return nil, errors.Trace(err)
				}
				p := nn.Sigmoid(head.Forward(nn.Concat(output.Interest, input.Target)))
				objective := output.Objective(nn.BCE(p, dataset.Labels(batch), 1e-7))
				optimizer.ZeroGrad()
				objective.Backward()
				optimizer.Step()
				loss.Add(objective.Data()[0])
				if epoch == cfg.Bench.Epochs-1 {
					for i, label := range batch.Labels {
						if label > 0 {
							posPrediction = append(posPrediction, p.Data()[i])
						} else {
							negPrediction = append(negPrediction, p.Data()[i])
						}
					}
				}
				steps.Inc()
				sequences.Add(int64(batch.Size()))
				_ = bar.Add(1)
			}
		}
	} else {
		inputs := lo.Map(batches, func(batch *dataset.Batch, _ int) *interest.Input {
			return embeddings.Input(batch)
		})
		for epoch := 0; epoch < cfg.Bench.Epochs; epoch++ {
			err = parallel.Parallel(ctx, len(inputs), cfg.Bench.NumJobs, func(_, jobId int) error {
				output, err := engine.Forward(inputs[jobId])
				if err != nil {
					return errors.Trace(err)
				}
				if output.AuxLoss != nil {
					loss.Add(output.AuxLoss.Data()[0])
				}
				steps.Inc()
				sequences.Add(int64(batches[jobId].Size()))
				_ = bar.Add(1)
				return nil
			})
			if err != nil {
				return nil, errors.Trace(err)
			}
		}
	}
	_ = bar.Finish()

	result := &Result{
		Variant:   variant,
		Sequences: sequences.Load(),
		Elapsed:   time.Since(start),
		AUC:       AUC(posPrediction, negPrediction),
	}
	if n := steps.Load(); n > 0 {
		result.Loss = loss.Load() / float32(n)
	}
	return result, nil
}

func newOptimizer(bench *config.BenchConfig, params []*nn.Tensor) nn.Optimizer {
	var optimizer nn.Optimizer
	switch bench.Optimizer {
	case "sgd":
		optimizer = nn.NewSGD(params, bench.LearningRate)
	default:
		optimizer = nn.NewAdam(params, bench.LearningRate)
	}
	optimizer.SetClipNorm(bench.ClipNorm)
	return optimizer
}

// AUC is the fraction of positive and negative pairs ordered correctly by predictions.
func AUC(posPrediction, negPrediction []float32) float32 {
	if len(posPrediction)*len(negPrediction) == 0 {
		return 0
	}
	sort.Sort(sortutil.Float32Slice(posPrediction))
	sort.Sort(sortutil.Float32Slice(negPrediction))
	var sum float32
	var nPos int
	for pPos := range posPrediction {
		// count negative samples ranked below the current positive sample
		for nPos < len(negPrediction) && negPrediction[nPos] < posPrediction[pPos] {
			nPos++
		}
		sum += float32(nPos)
	}
	return sum / float32(len(posPrediction)*len(negPrediction))
}
