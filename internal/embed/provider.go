// Package embed talks to the pretrained audio embedding model. The model
// itself runs out of process; this package only depends on the wire contract.
package embed

import (
	"context"

	"github.com/vladbelms/neural-critic/internal/critic"
)

// Provider maps one decoded waveform to a fixed-dimensionality vector.
// Implementations must return the same dimensionality for every call.
type Provider interface {
	// ModelID identifies the embedding model and checkpoint, so artifacts can
	// record what they were trained against.
	ModelID() string

	// Dimensions reports the embedding dimensionality D.
	Dimensions(ctx context.Context) (int, error)

	// Embed returns the embedding of one track. Unreadable input is reported
	// as critic.ErrUnsupportedAudio.
	Embed(ctx context.Context, w critic.Waveform) ([]float64, error)
}
