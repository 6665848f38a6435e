// Package pipeline orchestrates training runs and album scoring. It owns the
// stage ordering; the heavy lifting lives in the feature, regress, tuner, and
// embed packages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vladbelms/neural-critic/internal/artifact"
	"github.com/vladbelms/neural-critic/internal/audio"
	"github.com/vladbelms/neural-critic/internal/critic"
	"github.com/vladbelms/neural-critic/internal/embed"
	"github.com/vladbelms/neural-critic/internal/feature"
	"github.com/vladbelms/neural-critic/internal/regress"
	"github.com/vladbelms/neural-critic/internal/store"
	"github.com/vladbelms/neural-critic/internal/tuner"
)

// Config controls one training run.
type Config struct {
	Scheme         feature.Scheme
	Space          tuner.Space
	Trials         int
	Seed           int64
	Workers        int
	SearchDeadline time.Duration
	ValFraction    float64
	ArtifactPath   string
}

func DefaultConfig() Config {
	return Config{
		Scheme:       feature.SchemeMeanStd,
		Space:        tuner.DefaultSpace(),
		Trials:       30,
		Seed:         42,
		Workers:      4,
		ValFraction:  0.2,
		ArtifactPath: "models/critic.json",
	}
}

// Trainer runs the training pipeline: load corpus, extract embeddings,
// aggregate, split, search hyperparameters, fit the final model, persist the
// artifact. Stages run strictly in that order.
type Trainer struct {
	store    *store.Store
	provider embed.Provider
	cfg      Config
	log      zerolog.Logger

	// decode is swappable so tests can feed synthetic waveforms.
	decode func(path string) (critic.Waveform, error)
}

func NewTrainer(s *store.Store, provider embed.Provider, cfg Config, log zerolog.Logger) *Trainer {
	return &Trainer{
		store:    s,
		provider: provider,
		cfg:      cfg,
		log:      log,
		decode:   audio.Decode,
	}
}

// albumData carries one album through the stages.
type albumData struct {
	album      store.Album
	tracks     []store.Track
	embeddings [][]float64
	features   []float64
}

// Run executes the pipeline and returns the persisted artifact together with
// the search result for reporting.
func (t *Trainer) Run(ctx context.Context) (*artifact.Artifact, *tuner.Result, error) {
	dim, err := t.provider.Dimensions(ctx)
	if err != nil {
		return nil, nil, err
	}

	albums, err := t.loadCorpus()
	if err != nil {
		return nil, nil, err
	}
	t.log.Info().Int("albums", len(albums)).Int("embedding_dim", dim).Msg("corpus loaded")

	if err := t.extractEmbeddings(ctx, albums, dim); err != nil {
		return nil, nil, err
	}

	agg, err := feature.NewAggregator(t.cfg.Scheme, dim)
	if err != nil {
		return nil, nil, err
	}
	features := make([][]float64, len(albums))
	targets := make([]float64, len(albums))
	for i := range albums {
		vec, err := agg.Aggregate(albums[i].embeddings)
		if err != nil {
			return nil, nil, fmt.Errorf("aggregating %q - %q: %w", albums[i].album.Artist, albums[i].album.Name, err)
		}
		albums[i].features = vec
		features[i] = vec
		targets[i] = *albums[i].album.Score
	}

	trainX, trainY, valX, valY := split(features, targets, t.cfg.ValFraction, t.cfg.Seed)
	t.log.Info().
		Int("train", len(trainX)).
		Int("validation", len(valX)).
		Int("feature_dim", agg.OutputDim()).
		Msg("dataset built")

	result, err := tuner.Search(ctx, t.cfg.Space, tuner.Options{
		Trials:   t.cfg.Trials,
		Seed:     t.cfg.Seed,
		Workers:  t.cfg.Workers,
		Deadline: t.cfg.SearchDeadline,
	}, trainX, trainY, valX, valY)
	if err != nil {
		return nil, nil, fmt.Errorf("hyperparameter search: %w", err)
	}
	t.log.Info().
		Float64("validation_mae", result.BestLoss).
		Interface("params", result.Best).
		Msg("search finished")

	// The final model is refit on the full dataset with the winning
	// configuration; the reported MAE stays the held-out one from the search.
	final := regress.New(result.Best)
	if err := final.Fit(features, targets); err != nil {
		return nil, nil, fmt.Errorf("fitting final model: %w", err)
	}

	art := &artifact.Artifact{
		Version:       artifact.Version,
		RunID:         uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		EmbedderModel: t.provider.ModelID(),
		Scheme:        agg.Scheme(),
		EmbeddingDim:  dim,
		FeatureDim:    agg.OutputDim(),
		Params:        result.Best,
		ValidationMAE: result.BestLoss,
		Model:         final,
	}
	if err := artifact.Save(t.cfg.ArtifactPath, art); err != nil {
		return nil, nil, fmt.Errorf("persisting artifact: %w", err)
	}
	t.log.Info().Str("run_id", art.RunID).Str("path", t.cfg.ArtifactPath).Msg("artifact written")

	return art, result, nil
}

func (t *Trainer) loadCorpus() ([]*albumData, error) {
	albums, err := t.store.ScoredAlbums()
	if err != nil {
		return nil, err
	}
	if len(albums) == 0 {
		return nil, fmt.Errorf("no scored albums with tracks in the corpus: %w", critic.ErrCorpusEmpty)
	}

	data := make([]*albumData, 0, len(albums))
	for _, a := range albums {
		tracks, err := t.store.TracksForAlbum(a.ID)
		if err != nil {
			return nil, err
		}
		data = append(data, &albumData{album: a, tracks: tracks})
	}
	return data, nil
}

// extractEmbeddings fills each album's embedding rows, consulting the cache
// first. Individual track failures are logged and skipped; an album with no
// surviving tracks fails the run.
func (t *Trainer) extractEmbeddings(ctx context.Context, albums []*albumData, dim int) error {
	model := t.provider.ModelID()
	workers := t.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	for _, a := range albums {
		slots := make([][]float64, len(a.tracks))
		fromCache := make([]bool, len(a.tracks))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, track := range a.tracks {
			i, track := i, track
			g.Go(func() error {
				cached, ok, err := t.store.CachedEmbedding(track.ID, model)
				if err != nil {
					return err
				}
				if ok {
					slots[i] = cached
					fromCache[i] = true
					return nil
				}

				wave, err := t.decode(track.Path)
				if err != nil {
					t.log.Warn().Str("track", track.Path).Err(err).Msg("skipping track: decode failed")
					return nil
				}
				vec, err := t.provider.Embed(gctx, wave)
				if err != nil {
					if isFatalEmbed(err) {
						return err
					}
					t.log.Warn().Str("track", track.Path).Err(err).Msg("skipping track: embedding failed")
					return nil
				}
				slots[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, vec := range slots {
			if vec == nil {
				continue
			}
			if len(vec) != dim {
				return fmt.Errorf("track %s embedded with dimensionality %d, provider reports %d: %w",
					a.tracks[i].Path, len(vec), dim, critic.ErrDimensionMismatch)
			}
			if !fromCache[i] {
				if err := t.store.SaveEmbedding(a.tracks[i].ID, model, vec); err != nil {
					return err
				}
			}
			a.embeddings = append(a.embeddings, vec)
		}

		if len(a.embeddings) == 0 {
			return fmt.Errorf("album %q - %q has no usable tracks: %w",
				a.album.Artist, a.album.Name, critic.ErrCorpusEmpty)
		}
	}
	return nil
}

// isFatalEmbed separates per-track recoverable failures (corrupt audio) from
// conditions that doom the whole run (provider gone, dimensionality drift).
func isFatalEmbed(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, critic.ErrModelUnavailable) ||
		errors.Is(err, critic.ErrDimensionMismatch)
}

// split deterministically shuffles album indices and carves off the
// validation fraction (at least one album on each side).
func split(features [][]float64, targets []float64, valFraction float64, seed int64) (trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) {
	n := len(features)
	idx := rand.New(rand.NewSource(seed)).Perm(n)

	nVal := int(float64(n) * valFraction)
	if nVal < 1 {
		nVal = 1
	}
	if nVal >= n {
		nVal = n - 1
	}

	for i, j := range idx {
		if i < nVal {
			valX = append(valX, features[j])
			valY = append(valY, targets[j])
		} else {
			trainX = append(trainX, features[j])
			trainY = append(trainY, targets[j])
		}
	}
	return trainX, trainY, valX, valY
}
