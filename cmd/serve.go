package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vladbelms/neural-critic/internal/artifact"
	"github.com/vladbelms/neural-critic/internal/critic"
	"github.com/vladbelms/neural-critic/internal/embed"
	"github.com/vladbelms/neural-critic/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves album scoring over HTTP",
	Long: `Loads the model artifact, verifies it against the embedding service,
and exposes POST /v1/score accepting multipart audio uploads.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := serveScoring(viper.GetString("artifact"), viper.GetString("embedder"), viper.GetString("addr"))
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	var addr string
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
}

func serveScoring(artPath, embedderURL, addr string) error {
	ctx := context.Background()
	log := newLogger()

	art, err := artifact.Load(artPath)
	if err != nil {
		return err
	}

	provider := embed.NewHTTPProvider(embedderURL, viper.GetFloat64("embedder-rate"))
	if err := provider.EnsureReady(ctx); err != nil {
		return err
	}

	scorer, err := pipeline.NewScorer(ctx, provider, art, &pipeline.Clamp{Min: 0, Max: 100}, log)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"model":  art.EmbedderModel,
			"run_id": art.RunID,
		})
	})

	router.POST("/v1/score", func(c *gin.Context) {
		handleScore(c, scorer)
	})

	log.Info().Str("addr", addr).Str("run_id", art.RunID).Msg("serving")
	return router.Run(addr)
}

// handleScore accepts a multipart form with one or more files under "tracks"
// and responds with the predicted score. Scoring failures surface the error
// kind and cause; no fabricated score is ever returned.
func handleScore(c *gin.Context, scorer *pipeline.Scorer) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "cause": err.Error()})
		return
	}
	files := form.File["tracks"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "cause": "no tracks uploaded"})
		return
	}

	tmpDir, err := os.MkdirTemp("", "album-score-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "cause": err.Error()})
		return
	}
	defer os.RemoveAll(tmpDir)

	paths := make([]string, 0, len(files))
	for _, file := range files {
		dst := filepath.Join(tmpDir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, dst); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "cause": err.Error()})
			return
		}
		paths = append(paths, dst)
	}

	score, err := scorer.ScoreFiles(c.Request.Context(), paths)
	if err != nil {
		status, kind := classifyError(err)
		c.JSON(status, gin.H{"error": kind, "cause": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"score": score, "tracks": len(paths)})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, critic.ErrUnsupportedAudio):
		return http.StatusUnprocessableEntity, "unsupported audio"
	case errors.Is(err, critic.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, critic.ErrDimensionMismatch):
		return http.StatusInternalServerError, "dimension mismatch"
	case errors.Is(err, critic.ErrConfigMismatch):
		return http.StatusInternalServerError, "config mismatch"
	case errors.Is(err, critic.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
