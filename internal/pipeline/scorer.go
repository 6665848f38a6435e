package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vladbelms/neural-critic/internal/artifact"
	"github.com/vladbelms/neural-critic/internal/audio"
	"github.com/vladbelms/neural-critic/internal/critic"
	"github.com/vladbelms/neural-critic/internal/embed"
	"github.com/vladbelms/neural-critic/internal/feature"
)

// Clamp bounds predicted scores post-hoc. The regressor itself never clamps;
// this is an explicit configuration choice of the caller.
type Clamp struct {
	Min, Max float64
}

// Scorer is the explicitly constructed inference service: the loaded
// embedding provider, the trained artifact, and the aggregator recorded in
// it. It carries no mutable state, so concurrent ScoreAlbum calls may share
// one Scorer.
type Scorer struct {
	provider embed.Provider
	art      *artifact.Artifact
	agg      *feature.Aggregator
	clamp    *Clamp
	log      zerolog.Logger

	decode func(path string) (critic.Waveform, error)
}

// NewScorer validates that the live provider matches the pipeline
// configuration the artifact was trained with. A provider reporting a
// different embedding dimensionality or model id means the artifact is stale
// for this deployment: critic.ErrConfigMismatch.
func NewScorer(ctx context.Context, provider embed.Provider, art *artifact.Artifact, clamp *Clamp, log zerolog.Logger) (*Scorer, error) {
	dim, err := provider.Dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if dim != art.EmbeddingDim {
		return nil, fmt.Errorf("provider embeds into %d dimensions but artifact %s was trained with %d: %w",
			dim, art.RunID, art.EmbeddingDim, critic.ErrConfigMismatch)
	}
	if art.EmbedderModel != "" && provider.ModelID() != art.EmbedderModel {
		return nil, fmt.Errorf("provider model %q, artifact trained against %q: %w",
			provider.ModelID(), art.EmbedderModel, critic.ErrConfigMismatch)
	}

	agg, err := feature.NewAggregator(art.Scheme, art.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	return &Scorer{
		provider: provider,
		art:      art,
		agg:      agg,
		clamp:    clamp,
		log:      log,
		decode:   audio.Decode,
	}, nil
}

// Artifact exposes the loaded artifact's metadata for display.
func (s *Scorer) Artifact() *artifact.Artifact { return s.art }

// ScoreAlbum embeds every waveform, aggregates with the artifact's recorded
// scheme, and predicts. Unlike training, a failed track is fatal here: a
// partial album must not be scored silently.
func (s *Scorer) ScoreAlbum(ctx context.Context, tracks []critic.Waveform) (float64, error) {
	if len(tracks) == 0 {
		return 0, fmt.Errorf("scoring album with no tracks: %w", critic.ErrInvalidInput)
	}

	embeddings := make([][]float64, len(tracks))
	for i, w := range tracks {
		vec, err := s.provider.Embed(ctx, w)
		if err != nil {
			return 0, fmt.Errorf("embedding track %d: %w", i+1, err)
		}
		embeddings[i] = vec
	}

	vec, err := s.agg.Aggregate(embeddings)
	if err != nil {
		return 0, err
	}

	score, err := s.art.Model.Predict(vec)
	if err != nil {
		return 0, err
	}
	if s.clamp != nil {
		if score < s.clamp.Min {
			score = s.clamp.Min
		}
		if score > s.clamp.Max {
			score = s.clamp.Max
		}
	}

	s.log.Debug().Int("tracks", len(tracks)).Float64("score", score).Msg("album scored")
	return score, nil
}

// ScoreFiles decodes local audio files and scores them as one album.
func (s *Scorer) ScoreFiles(ctx context.Context, paths []string) (float64, error) {
	if len(paths) == 0 {
		return 0, fmt.Errorf("no audio files given: %w", critic.ErrInvalidInput)
	}
	waves := make([]critic.Waveform, 0, len(paths))
	for _, p := range paths {
		w, err := s.decode(p)
		if err != nil {
			return 0, err
		}
		waves = append(waves, w)
	}
	return s.ScoreAlbum(ctx, waves)
}
