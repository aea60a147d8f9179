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

package config

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/dien/model/interest"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config is the configuration of the interest evolution engine and its benchmark.
type Config struct {
	Model ModelConfig `mapstructure:"model"`
	Bench BenchConfig `mapstructure:"bench"`
}

type ModelConfig struct {
	Variant              interest.Variant `mapstructure:"variant" validate:"gte=0,lte=3"`
	Capacity             int              `mapstructure:"capacity" validate:"gt=0"`
	EmbeddingDim         int              `mapstructure:"embedding_dim" validate:"gt=0"`
	HiddenDim            int              `mapstructure:"hidden_dim" validate:"gte=0"`
	UseNegativeSampling  bool             `mapstructure:"use_negative_sampling"`
	AuxLossWeight        float32          `mapstructure:"aux_loss_weight" validate:"gte=0"`
	AttentionNormalize   *bool            `mapstructure:"attention_normalize"`
	AttentionHiddenSizes []int            `mapstructure:"attention_hidden_sizes" validate:"dive,gt=0"`
	AttentionActivation  string           `mapstructure:"attention_activation" validate:"oneof=sigmoid relu tanh dice"`
	AuxiliaryHiddenSizes []int            `mapstructure:"auxiliary_hidden_sizes" validate:"dive,gt=0"`
	Seed                 int64            `mapstructure:"seed"`
}

// Interest converts the model configuration to the engine configuration.
func (config *ModelConfig) Interest() interest.Config {
	return interest.Config{
		Variant:              config.Variant,
		Capacity:             config.Capacity,
		EmbeddingDim:         config.EmbeddingDim,
		HiddenDim:            config.HiddenDim,
		UseNegativeSampling:  config.UseNegativeSampling,
		AuxLossWeight:        config.AuxLossWeight,
		AttentionNormalize:   config.AttentionNormalize,
		AttentionHiddenSizes: config.AttentionHiddenSizes,
		AttentionActivation:  config.AttentionActivation,
		AuxiliaryHiddenSizes: config.AuxiliaryHiddenSizes,
		Seed:                 config.Seed,
	}
}

type BenchConfig struct {
	Variants     []interest.Variant `mapstructure:"variants" validate:"min=1,dive,gte=0,lte=3"`
	NumUsers     int                `mapstructure:"num_users" validate:"gt=0"`
	NumItems     int                `mapstructure:"num_items" validate:"gt=1"`
	BatchSize    int                `mapstructure:"batch_size" validate:"gt=0"`
	Epochs       int                `mapstructure:"epochs" validate:"gt=0"`
	Backward     bool               `mapstructure:"backward"`
	Optimizer    string             `mapstructure:"optimizer" validate:"oneof=adam sgd"`
	LearningRate float32            `mapstructure:"learning_rate" validate:"gt=0"`
	ClipNorm     float32            `mapstructure:"clip_norm" validate:"gte=0"`
	InitStd      float32            `mapstructure:"init_std" validate:"gt=0"`
	NumJobs      int                `mapstructure:"num_jobs" validate:"gt=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Variant:              interest.AUGRU,
			Capacity:             50,
			EmbeddingDim:         8,
			UseNegativeSampling:  true,
			AuxLossWeight:        1,
			AttentionHiddenSizes: []int{64, 16},
			AttentionActivation:  "sigmoid",
			AuxiliaryHiddenSizes: []int{100, 50},
		},
		Bench: BenchConfig{
			Variants:     []interest.Variant{interest.GRU, interest.AIGRU, interest.AGRU, interest.AUGRU},
			NumUsers:     1000,
			NumItems:     10000,
			BatchSize:    128,
			Epochs:       1,
			Optimizer:    "adam",
			LearningRate: 0.001,
			ClipNorm:     5,
			InitStd:      0.01,
			NumJobs:      1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [model]
	v.SetDefault("model.variant", defaultConfig.Model.Variant.String())
	v.SetDefault("model.capacity", defaultConfig.Model.Capacity)
	v.SetDefault("model.embedding_dim", defaultConfig.Model.EmbeddingDim)
	v.SetDefault("model.hidden_dim", defaultConfig.Model.HiddenDim)
	v.SetDefault("model.use_negative_sampling", defaultConfig.Model.UseNegativeSampling)
	v.SetDefault("model.aux_loss_weight", defaultConfig.Model.AuxLossWeight)
	v.SetDefault("model.attention_hidden_sizes", defaultConfig.Model.AttentionHiddenSizes)
	v.SetDefault("model.attention_activation", defaultConfig.Model.AttentionActivation)
	v.SetDefault("model.auxiliary_hidden_sizes", defaultConfig.Model.AuxiliaryHiddenSizes)
	v.SetDefault("model.seed", defaultConfig.Model.Seed)
	// [bench]
	v.SetDefault("bench.variants", []string{"GRU", "AIGRU", "AGRU", "AUGRU"})
	v.SetDefault("bench.num_users", defaultConfig.Bench.NumUsers)
	v.SetDefault("bench.num_items", defaultConfig.Bench.NumItems)
	v.SetDefault("bench.batch_size", defaultConfig.Bench.BatchSize)
	v.SetDefault("bench.epochs", defaultConfig.Bench.Epochs)
	v.SetDefault("bench.backward", defaultConfig.Bench.Backward)
	v.SetDefault("bench.optimizer", defaultConfig.Bench.Optimizer)
	v.SetDefault("bench.learning_rate", defaultConfig.Bench.LearningRate)
	v.SetDefault("bench.clip_norm", defaultConfig.Bench.ClipNorm)
	v.SetDefault("bench.init_std", defaultConfig.Bench.InitStd)
	v.SetDefault("bench.num_jobs", defaultConfig.Bench.NumJobs)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"model.variant", "DIEN_VARIANT"},
	{"model.capacity", "DIEN_CAPACITY"},
	{"model.embedding_dim", "DIEN_EMBEDDING_DIM"},
	{"model.hidden_dim", "DIEN_HIDDEN_DIM"},
	{"model.use_negative_sampling", "DIEN_USE_NEGATIVE_SAMPLING"},
	{"model.aux_loss_weight", "DIEN_AUX_LOSS_WEIGHT"},
	{"model.attention_normalize", "DIEN_ATTENTION_NORMALIZE"},
	{"model.seed", "DIEN_SEED"},
	{"bench.variants", "DIEN_BENCH_VARIANTS"},
	{"bench.batch_size", "DIEN_BENCH_BATCH_SIZE"},
	{"bench.optimizer", "DIEN_BENCH_OPTIMIZER"},
	{"bench.num_jobs", "DIEN_BENCH_JOBS"},
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	setDefault(v)
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return v, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	if err := v.Unmarshal(&config, viper.DecodeHook(hook)); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

// LoadConfig loads configuration from a file and environment variables. Files
// without a known extension are read as TOML. Defaults apply if path is empty.
func LoadConfig(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); !lo.Contains(viper.SupportedExts, ext) {
			v.SetConfigType("toml")
		}
		if err = v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return unmarshal(v)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	return nil
}
