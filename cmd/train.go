/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vladbelms/neural-critic/internal/artifact"
	"github.com/vladbelms/neural-critic/internal/embed"
	"github.com/vladbelms/neural-critic/internal/feature"
	"github.com/vladbelms/neural-critic/internal/pipeline"
	"github.com/vladbelms/neural-critic/internal/store"
	"github.com/vladbelms/neural-critic/internal/tuner"
)

type TrainConfig struct {
	DbPath         string
	ArtifactPath   string
	EmbedderURL    string
	Scheme         string
	Trials         int
	Seed           int64
	Workers        int
	SearchDeadline time.Duration
	NotifyEmail    string
}

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Trains the critic score model on the corpus",
	Long: `Extracts embeddings for every scored album in the corpus, searches
boosting hyperparameters against a held-out validation split, fits the final
model, and writes the model artifact.`,
	Run: func(cmd *cobra.Command, args []string) {
		deadlineStr := viper.GetString("search-deadline")
		var deadline time.Duration
		if deadlineStr != "" {
			var err error
			deadline, err = time.ParseDuration(deadlineStr)
			if err != nil {
				fmt.Printf("Invalid search-deadline: %v. Searching without one.\n", err)
				deadline = 0
			}
		}

		config := TrainConfig{
			DbPath:         viper.GetString("database"),
			ArtifactPath:   viper.GetString("artifact"),
			EmbedderURL:    viper.GetString("embedder"),
			Scheme:         viper.GetString("scheme"),
			Trials:         viper.GetInt("trials"),
			Seed:           viper.GetInt64("seed"),
			Workers:        viper.GetInt("workers"),
			SearchDeadline: deadline,
			NotifyEmail:    viper.GetString("notify"),
		}

		if err := trainModel(config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)

	var scheme string
	trainCmd.Flags().StringVar(&scheme, "scheme", string(feature.SchemeMeanStd),
		"Aggregation scheme: mean or meanstd")
	viper.BindPFlag("scheme", trainCmd.Flags().Lookup("scheme"))

	var trials int
	trainCmd.Flags().IntVar(&trials, "trials", 30, "Hyperparameter search budget")
	viper.BindPFlag("trials", trainCmd.Flags().Lookup("trials"))

	var seed int64
	trainCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for split and search")
	viper.BindPFlag("seed", trainCmd.Flags().Lookup("seed"))

	var workers int
	trainCmd.Flags().IntVar(&workers, "workers", 4, "Parallel workers for extraction and trials")
	viper.BindPFlag("workers", trainCmd.Flags().Lookup("workers"))

	var searchDeadline string
	trainCmd.Flags().StringVar(&searchDeadline, "search-deadline", "",
		"Optional time budget for the search (e.g. 10m); on expiry the best trial so far wins")
	viper.BindPFlag("search-deadline", trainCmd.Flags().Lookup("search-deadline"))

	var notify string
	trainCmd.Flags().StringVar(&notify, "notify", "", "Email the training report to this address")
	viper.BindPFlag("notify", trainCmd.Flags().Lookup("notify"))
}

func trainModel(config TrainConfig) error {
	ctx := context.Background()
	log := newLogger()

	db, err := store.New(config.DbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	provider := embed.NewHTTPProvider(config.EmbedderURL, viper.GetFloat64("embedder-rate"))
	fmt.Printf("Waiting for embedder at %s\n", config.EmbedderURL)
	if err := provider.EnsureReady(ctx); err != nil {
		return err
	}
	fmt.Printf("Embedder ready: %s\n", provider.ModelID())

	cfg := pipeline.DefaultConfig()
	cfg.Scheme = feature.Scheme(config.Scheme)
	cfg.Trials = config.Trials
	cfg.Seed = config.Seed
	cfg.Workers = config.Workers
	cfg.SearchDeadline = config.SearchDeadline
	cfg.ArtifactPath = config.ArtifactPath

	trainer := pipeline.NewTrainer(db, provider, cfg, log)
	art, result, err := trainer.Run(ctx)
	if err != nil {
		return err
	}

	report := buildTrainingReport(art, result)
	fmt.Print(report)

	if config.NotifyEmail != "" {
		subject := fmt.Sprintf("neural-critic training run %s", art.RunID)
		if err := sendReport(config.NotifyEmail, subject, report); err != nil {
			return fmt.Errorf("sending report: %w", err)
		}
		fmt.Printf("Report sent to %s\n", config.NotifyEmail)
	}

	return nil
}

func buildTrainingReport(art *artifact.Artifact, result *tuner.Result) string {
	out := new(bytes.Buffer)

	fmt.Fprintf(out, "Training run %s\n", art.RunID)
	fmt.Fprintf(out, "Embedder: %s (D=%d), aggregation: %s (F=%d)\n",
		art.EmbedderModel, art.EmbeddingDim, art.Scheme, art.FeatureDim)

	completed := make([]tuner.Trial, 0, len(result.Trials))
	failed := 0
	for _, t := range result.Trials {
		if t.Err != nil {
			failed++
			continue
		}
		completed = append(completed, t)
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].Loss < completed[j].Loss })
	if len(completed) > 10 {
		completed = completed[:10]
	}

	fmt.Fprintf(out, "Best of %d trials (%d failed):\n", len(result.Trials), failed)
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Trial", "Trees", "Depth", "LR", "L2", "Subsample", "Val MAE"})
	for _, t := range completed {
		table.Append([]string{
			strconv.Itoa(t.Index),
			strconv.Itoa(t.Params.Trees),
			strconv.Itoa(t.Params.Depth),
			strconv.FormatFloat(t.Params.LearningRate, 'f', 4, 64),
			strconv.FormatFloat(t.Params.L2, 'f', 2, 64),
			strconv.FormatFloat(t.Params.Subsample, 'f', 2, 64),
			strconv.FormatFloat(t.Loss, 'f', 3, 64),
		})
	}
	table.Render()

	fmt.Fprintf(out, "Validation MAE: %.3f\n", art.ValidationMAE)
	fmt.Fprintf(out, "Artifact: created %s\n", art.CreatedAt.Format("2006-01-02 15:04:05"))
	return out.String()
}
