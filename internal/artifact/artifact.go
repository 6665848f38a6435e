// Package artifact persists the output of one training run: the fitted model
// plus the feature-extraction configuration it was trained with. Artifacts are
// written once and never mutated; retraining produces a new file.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vladbelms/neural-critic/internal/critic"
	"github.com/vladbelms/neural-critic/internal/feature"
	"github.com/vladbelms/neural-critic/internal/regress"
)

const Version = 1

type Artifact struct {
	Version       int            `json:"version"`
	RunID         string         `json:"run_id"`
	CreatedAt     time.Time      `json:"created_at"`
	EmbedderModel string         `json:"embedder_model"`
	Scheme        feature.Scheme `json:"aggregation_scheme"`
	EmbeddingDim  int            `json:"embedding_dim"`
	FeatureDim    int            `json:"feature_dim"`
	Params        regress.Params `json:"params"`
	ValidationMAE float64        `json:"validation_mae"`
	Model         *regress.Model `json:"model"`
}

// Save writes the artifact atomically: encode to a temp file in the target
// directory, then rename over the destination.
func Save(path string, a *Artifact) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*.json")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Load reads and validates an artifact. Anything structurally wrong with the
// file, including an absent dimensionality field, is critic.ErrCorruptArtifact.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact %s: %w", path, err)
	}
	defer f.Close()

	var a Artifact
	if err := json.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("decoding artifact %s: %v: %w", path, err, critic.ErrCorruptArtifact)
	}

	if a.Version != Version {
		return nil, fmt.Errorf("artifact %s has version %d, want %d: %w", path, a.Version, Version, critic.ErrCorruptArtifact)
	}
	if a.EmbeddingDim <= 0 || a.FeatureDim <= 0 {
		return nil, fmt.Errorf("artifact %s is missing dimensionality fields: %w", path, critic.ErrCorruptArtifact)
	}
	if !a.Scheme.Valid() {
		return nil, fmt.Errorf("artifact %s names unknown aggregation scheme %q: %w", path, a.Scheme, critic.ErrCorruptArtifact)
	}
	if a.FeatureDim != a.Scheme.OutputDim(a.EmbeddingDim) {
		return nil, fmt.Errorf("artifact %s: scheme %q over %d dims yields %d features, not %d: %w",
			path, a.Scheme, a.EmbeddingDim, a.Scheme.OutputDim(a.EmbeddingDim), a.FeatureDim, critic.ErrCorruptArtifact)
	}
	if a.Model == nil || a.Model.Dim() != a.FeatureDim {
		return nil, fmt.Errorf("artifact %s: model missing or fitted with wrong dimensionality: %w", path, critic.ErrCorruptArtifact)
	}
	return &a, nil
}
