package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vladbelms/neural-critic/internal/artifact"
	"github.com/vladbelms/neural-critic/internal/audio"
	"github.com/vladbelms/neural-critic/internal/embed"
	"github.com/vladbelms/neural-critic/internal/pipeline"
)

var scoreCmd = &cobra.Command{
	Use:   "score <album-dir>",
	Short: "Predicts the critic score of one album",
	Long: `Embeds every audio file in the given directory with the same pipeline
configuration the model artifact was trained with, and prints the predicted
critic score.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		err := scoreAlbum(viper.GetString("artifact"), viper.GetString("embedder"), args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	var clamp bool
	scoreCmd.Flags().BoolVar(&clamp, "clamp", true, "Clamp predictions to the 0-100 critic scale")
	viper.BindPFlag("clamp", scoreCmd.Flags().Lookup("clamp"))
}

func scoreAlbum(artPath, embedderURL, albumDir string) error {
	ctx := context.Background()

	art, err := artifact.Load(artPath)
	if err != nil {
		return err
	}

	paths, err := collectAudioFiles(albumDir)
	if err != nil {
		return err
	}
	fmt.Printf("Scoring %d tracks with model from run %s\n", len(paths), art.RunID)

	provider := embed.NewHTTPProvider(embedderURL, viper.GetFloat64("embedder-rate"))
	if err := provider.EnsureReady(ctx); err != nil {
		return err
	}

	var clamp *pipeline.Clamp
	if viper.GetBool("clamp") {
		clamp = &pipeline.Clamp{Min: 0, Max: 100}
	}
	scorer, err := pipeline.NewScorer(ctx, provider, art, clamp, newLogger())
	if err != nil {
		return err
	}

	score, err := scorer.ScoreFiles(ctx, paths)
	if err != nil {
		return err
	}

	fmt.Printf("Predicted critic score: %.1f\n", score)
	return nil
}

func collectAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if audio.Supported(path) {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no audio files in %s", dir)
	}
	sort.Strings(paths)
	return paths, nil
}
