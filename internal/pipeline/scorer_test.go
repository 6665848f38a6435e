package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vladbelms/neural-critic/internal/artifact"
	"github.com/vladbelms/neural-critic/internal/critic"
	"github.com/vladbelms/neural-critic/internal/feature"
	"github.com/vladbelms/neural-critic/internal/regress"
)

// scorerArtifact fits a model over the fake provider's embedding space so the
// scorer reproduces the given waveform-value to score mapping.
func scorerArtifact(t *testing.T, provider *fakeProvider, values []float64, scores []float64) *artifact.Artifact {
	t.Helper()

	features := make([][]float64, len(values))
	for i, v := range values {
		emb, err := provider.Embed(context.Background(), synthWaveform(v))
		if err != nil {
			t.Fatalf("Embed: %v", err)
		}
		features[i] = emb
	}

	params := regress.DefaultParams()
	params.Trees = 300
	params.LearningRate = 0.3
	model := regress.New(params)
	if err := model.Fit(features, scores); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	return &artifact.Artifact{
		Version:       artifact.Version,
		RunID:         "test-run",
		CreatedAt:     time.Now().UTC(),
		EmbedderModel: provider.model,
		Scheme:        feature.SchemeMean,
		EmbeddingDim:  provider.dims,
		FeatureDim:    feature.SchemeMean.OutputDim(provider.dims),
		Params:        params,
		Model:         model,
	}
}

func TestScoreAlbum(t *testing.T) {
	provider := newFakeProvider(4)
	art := scorerArtifact(t, provider, []float64{0.1, 0.5, 0.9}, []float64{60, 75, 90})

	s, err := NewScorer(context.Background(), provider, art, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	score, err := s.ScoreAlbum(context.Background(), []critic.Waveform{synthWaveform(0.5)})
	if err != nil {
		t.Fatalf("ScoreAlbum: %v", err)
	}
	if math.Abs(score-75) > 1 {
		t.Errorf("score %v, want 75 within 1", score)
	}
}

func TestScoreAlbumEmpty(t *testing.T) {
	provider := newFakeProvider(4)
	art := scorerArtifact(t, provider, []float64{0.1, 0.9}, []float64{60, 90})

	s, err := NewScorer(context.Background(), provider, art, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	_, err = s.ScoreAlbum(context.Background(), nil)
	if !errors.Is(err, critic.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestScoreAlbumTrackFailureIsFatal(t *testing.T) {
	provider := newFakeProvider(4)
	art := scorerArtifact(t, provider, []float64{0.1, 0.9}, []float64{60, 90})

	s, err := NewScorer(context.Background(), provider, art, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	provider.fail = func(w critic.Waveform) error {
		if w.Samples[0] == 0.5 {
			return fmt.Errorf("bad track: %w", critic.ErrUnsupportedAudio)
		}
		return nil
	}

	_, err = s.ScoreAlbum(context.Background(), []critic.Waveform{synthWaveform(0.2), synthWaveform(0.5)})
	if !errors.Is(err, critic.ErrUnsupportedAudio) {
		t.Errorf("got %v, want the track failure to surface", err)
	}
}

func TestScoreAlbumClamp(t *testing.T) {
	provider := newFakeProvider(4)
	// Every training target sits above the clamp ceiling.
	art := scorerArtifact(t, provider, []float64{0.1, 0.9}, []float64{200, 200})

	s, err := NewScorer(context.Background(), provider, art, &Clamp{Min: 0, Max: 100}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}

	score, err := s.ScoreAlbum(context.Background(), []critic.Waveform{synthWaveform(0.5)})
	if err != nil {
		t.Fatalf("ScoreAlbum: %v", err)
	}
	if score != 100 {
		t.Errorf("score %v, want clamped to 100", score)
	}
}

func TestScoreFiles(t *testing.T) {
	provider := newFakeProvider(4)
	art := scorerArtifact(t, provider, []float64{0.1, 0.5, 0.9}, []float64{60, 75, 90})

	s, err := NewScorer(context.Background(), provider, art, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	s.decode = testDecoder(map[string]float64{"mem/album/1.mp3": 0.9})

	score, err := s.ScoreFiles(context.Background(), []string{"mem/album/1.mp3"})
	if err != nil {
		t.Fatalf("ScoreFiles: %v", err)
	}
	if math.Abs(score-90) > 1 {
		t.Errorf("score %v, want 90 within 1", score)
	}

	if _, err := s.ScoreFiles(context.Background(), nil); !errors.Is(err, critic.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput for no files", err)
	}
}

func TestNewScorerConfigMismatch(t *testing.T) {
	trained := newFakeProvider(4)
	art := scorerArtifact(t, trained, []float64{0.1, 0.9}, []float64{60, 90})

	t.Run("dimensionality drift", func(t *testing.T) {
		live := newFakeProvider(8)
		_, err := NewScorer(context.Background(), live, art, nil, zerolog.Nop())
		if !errors.Is(err, critic.ErrConfigMismatch) {
			t.Errorf("got %v, want ErrConfigMismatch", err)
		}
	})

	t.Run("different model id", func(t *testing.T) {
		live := newFakeProvider(4)
		live.model = "clap-v2"
		_, err := NewScorer(context.Background(), live, art, nil, zerolog.Nop())
		if !errors.Is(err, critic.ErrConfigMismatch) {
			t.Errorf("got %v, want ErrConfigMismatch", err)
		}
	})
}
