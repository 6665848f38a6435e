package cmd

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vladbelms/neural-critic/internal/analysis"
	"github.com/vladbelms/neural-critic/internal/artifact"
	"github.com/vladbelms/neural-critic/internal/feature"
	"github.com/vladbelms/neural-critic/internal/store"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Re-scores the corpus with the trained model",
	Long: `Loads the model artifact and predicts a score for every scored album
in the corpus using its cached embeddings, printing actual vs. predicted plus
an error breakdown by critic score band. Albums without cached embeddings for
the artifact's embedder are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := evalCorpus(viper.GetString("database"), viper.GetString("artifact"))
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)

	var gaps bool
	evalCmd.Flags().BoolVar(&gaps, "gaps", false, "Also list corpus coverage gaps (unscored or partially embedded albums)")
	viper.BindPFlag("gaps", evalCmd.Flags().Lookup("gaps"))
}

func evalCorpus(dbPath, artPath string) error {
	art, err := artifact.Load(artPath)
	if err != nil {
		return err
	}

	db, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	albums, err := db.ScoredAlbums()
	if err != nil {
		return err
	}

	agg, err := feature.NewAggregator(art.Scheme, art.EmbeddingDim)
	if err != nil {
		return err
	}

	var evals []analysis.AlbumEval
	skipped := 0
	for _, a := range albums {
		tracks, err := db.TracksForAlbum(a.ID)
		if err != nil {
			return err
		}

		var embeddings [][]float64
		for _, track := range tracks {
			vec, ok, err := db.CachedEmbedding(track.ID, art.EmbedderModel)
			if err != nil {
				return err
			}
			if ok {
				embeddings = append(embeddings, vec)
			}
		}
		if len(embeddings) == 0 {
			skipped++
			continue
		}

		features, err := agg.Aggregate(embeddings)
		if err != nil {
			return fmt.Errorf("aggregating %q - %q: %w", a.Artist, a.Name, err)
		}
		pred, err := art.Model.Predict(features)
		if err != nil {
			return err
		}

		evals = append(evals, analysis.AlbumEval{
			Artist:    a.Artist,
			Album:     a.Name,
			Actual:    *a.Score,
			Predicted: pred,
			Residual:  pred - *a.Score,
		})
	}

	if len(evals) == 0 {
		return fmt.Errorf("no albums with cached embeddings for model %q; run train first", art.EmbedderModel)
	}

	report, err := analysis.GenerateReport(db.DB(), evals, art.EmbedderModel, art.RunID)
	if err != nil {
		return err
	}
	printEvalReport(report, skipped)

	if viper.GetBool("gaps") {
		gaps, err := analysis.GetCoverageGaps(db.DB(), art.EmbedderModel)
		if err != nil {
			return err
		}
		printCoverageGaps(gaps)
	}

	return nil
}

func printEvalReport(report *analysis.Report, skipped int) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Artist", "Album", "Score", "Predicted", "Abs Err"})
	for _, e := range report.Albums {
		table.Append([]string{
			e.Artist,
			e.Album,
			strconv.FormatFloat(e.Actual, 'f', 1, 64),
			strconv.FormatFloat(e.Predicted, 'f', 1, 64),
			strconv.FormatFloat(math.Abs(e.Residual), 'f', 1, 64),
		})
	}
	table.Render()

	s := report.Summary
	fmt.Printf("MAE %.2f, RMSE %.2f, mean residual %+.2f over %d albums",
		s.MAE, s.RMSE, s.MeanResidual, s.Evaluated)
	if skipped > 0 {
		fmt.Printf(" (%d skipped, no cached embeddings)", skipped)
	}
	fmt.Println()

	if len(s.Bands) > 1 {
		fmt.Println("\nError by critic score band:")
		bands := tablewriter.NewWriter(os.Stdout)
		bands.Header([]string{"Band", "Albums", "MAE"})
		for _, b := range s.Bands {
			bands.Append([]string{b.Band, strconv.Itoa(b.Albums), strconv.FormatFloat(b.MAE, 'f', 2, 64)})
		}
		bands.Render()
	}

	printMisses("Most overpredicted:", s.Overpredicted)
	printMisses("Most underpredicted:", s.Underpredicted)
}

func printMisses(title string, misses []analysis.AlbumEval) {
	if len(misses) == 0 {
		return
	}
	fmt.Println("\n" + title)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"Artist", "Album", "Score", "Predicted"})
	for _, e := range misses {
		table.Append([]string{
			e.Artist,
			e.Album,
			strconv.FormatFloat(e.Actual, 'f', 1, 64),
			strconv.FormatFloat(e.Predicted, 'f', 1, 64),
		})
	}
	table.Render()
}

func printCoverageGaps(gaps *analysis.Gaps) {
	if len(gaps.UnscoredAlbums) == 0 && len(gaps.PartialAlbums) == 0 {
		fmt.Println("\nNo coverage gaps: every registered album is scored and embedded.")
		return
	}

	if len(gaps.UnscoredAlbums) > 0 {
		fmt.Println("\nAlbums with audio but no critic score:")
		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Artist", "Album"})
		for _, a := range gaps.UnscoredAlbums {
			table.Append([]string{a.Artist, a.Album})
		}
		table.Render()
	}

	if len(gaps.PartialAlbums) > 0 {
		fmt.Println("\nScored albums with missing embeddings:")
		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Artist", "Album", "Embedded"})
		for _, a := range gaps.PartialAlbums {
			table.Append([]string{a.Artist, a.Album, fmt.Sprintf("%d/%d", a.Cached, a.Tracks)})
		}
		table.Render()
	}
}
