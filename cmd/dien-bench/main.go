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
	"os"

	"github.com/gorse-io/dien/common/log"
	"github.com/gorse-io/dien/config"
	"github.com/gorse-io/dien/dataset"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "dien-bench",
	Short: "Benchmark the interest evolution engine",
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)
		defer log.CloseLogger()

		// Load configuration
		configPath, _ := cmd.PersistentFlags().GetString("config")
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		// Load dataset
		var data *dataset.Dataset
		if datasetPath, _ := cmd.PersistentFlags().GetString("dataset"); datasetPath != "" {
			data, err = dataset.LoadDataset(datasetPath)
			if err != nil {
				log.Logger().Fatal("failed to load dataset", zap.String("path", datasetPath), zap.Error(err))
			}
		} else {
			data = Synthesize(&cfg.Bench, cfg.Model.Capacity, cfg.Model.Seed)
		}
		log.Logger().Info("load dataset",
			zap.Int("sequences", data.Count()),
			zap.Int("items", data.GetItems().Count()-1))

		// Run benchmarks
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Variant", "Sequences", "Elapsed", "Sequences/s", "Loss", "AUC")
		for _, variant := range cfg.Bench.Variants {
			result, err := Benchmark(context.Background(), cfg, data, variant)
			if err != nil {
				log.Logger().Fatal("failed to benchmark", zap.Stringer("variant", variant), zap.Error(err))
			}
			if err = table.Append(result.Row()); err != nil {
				log.Logger().Fatal("failed to append row", zap.Error(err))
			}
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

func init() {
	log.AddFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCmd.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().StringP("dataset", "d", "", "dataset file path (synthesized if empty)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
