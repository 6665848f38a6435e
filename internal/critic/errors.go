package critic

import "errors"

// Sentinel errors for the scoring pipeline. Callers match with errors.Is;
// producers wrap them with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrInvalidInput marks malformed or empty feature input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch marks an embedding or feature vector whose
	// dimensionality disagrees with the configured or fitted one.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrCorpusEmpty marks a training run with no usable data, or an album
	// whose tracks all failed extraction.
	ErrCorpusEmpty = errors.New("corpus empty")

	// ErrConfigMismatch marks an inference-time pipeline configuration that
	// diverges from what the loaded artifact was trained with.
	ErrConfigMismatch = errors.New("config mismatch")

	// ErrUnsupportedAudio marks unreadable or corrupt audio input.
	ErrUnsupportedAudio = errors.New("unsupported audio")

	// ErrCorruptArtifact marks a model artifact that cannot be loaded.
	ErrCorruptArtifact = errors.New("corrupt artifact")

	// ErrModelUnavailable marks an embedding provider that never became ready.
	ErrModelUnavailable = errors.New("model unavailable")
)
