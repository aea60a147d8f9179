// Copyright 2020 gorse Project Authors
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

package util

import (
	"math/rand"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// RandomGenerator is the random generator shared by models and samplers.
type RandomGenerator struct {
	*rand.Rand
}

// NewRandomGenerator creates a RandomGenerator.
func NewRandomGenerator(seed int64) RandomGenerator {
	return RandomGenerator{NewRand(seed)}
}

// NormalVector makes a vec filled with normal random floats.
func (rng RandomGenerator) NormalVector(size int, mean, stdDev float32) []float32 {
	ret := make([]float32, size)
	for i := 0; i < len(ret); i++ {
		ret[i] = float32(rng.NormFloat64())*stdDev + mean
	}
	return ret
}

// Negatives draws n ids from [low, high) that are not in exclude. Ids are distinct
// while enough candidates exist, otherwise the candidates are shuffled and
// repeated. It returns nil if every id is excluded.
func (rng RandomGenerator) Negatives(low, high int32, n int, exclude mapset.Set[int32]) []int32 {
	if n <= 0 || high <= low {
		return nil
	}
	excluded := 0
	for id := range exclude.Iter() {
		if id >= low && id < high {
			excluded++
		}
	}
	numCandidates := int(high-low) - excluded
	if numCandidates <= 0 {
		return nil
	}
	sampled := make([]int32, 0, n)
	if n < numCandidates {
		// rejection sampling is cheap while most ids are candidates
		picked := mapset.NewThreadUnsafeSet[int32]()
		for len(sampled) < n {
			id := low + rng.Int31n(high-low)
			if !exclude.Contains(id) && picked.Add(id) {
				sampled = append(sampled, id)
			}
		}
		return sampled
	}
	candidates := make([]int32, 0, numCandidates)
	for id := low; id < high; id++ {
		if !exclude.Contains(id) {
			candidates = append(candidates, id)
		}
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for len(sampled) < n {
		sampled = append(sampled, candidates[len(sampled)%len(candidates)])
	}
	return sampled
}

// lockedSource allows a random number generator to be used by multiple goroutines concurrently.
// The code is very similar to math/rand.lockedSource, which is unfortunately not exposed.
type lockedSource struct {
	mut sync.Mutex
	src rand.Source
}

// NewRand returns a rand.Rand that is threadsafe.
func NewRand(seed int64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewSource(seed)})
}

func (r *lockedSource) Int63() (n int64) {
	r.mut.Lock()
	n = r.src.Int63()
	r.mut.Unlock()
	return
}

func (r *lockedSource) Seed(seed int64) {
	r.mut.Lock()
	r.src.Seed(seed)
	r.mut.Unlock()
}
