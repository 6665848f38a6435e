package feature

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/vladbelms/neural-critic/internal/critic"
)

// Scheme identifies the statistics used to pool per-track embeddings into one
// album feature vector. The scheme is fixed at training time and recorded in
// the model artifact; inference must use the recorded one.
type Scheme string

const (
	// SchemeMean is the elementwise mean of the track embeddings (F = D).
	SchemeMean Scheme = "mean"
	// SchemeMeanStd concatenates the elementwise mean and population standard
	// deviation (F = 2D).
	SchemeMeanStd Scheme = "meanstd"
)

// Valid reports whether s names a known aggregation scheme.
func (s Scheme) Valid() bool {
	return s == SchemeMean || s == SchemeMeanStd
}

// OutputDim returns the feature dimensionality F for embedding dimensionality d.
func (s Scheme) OutputDim(d int) int {
	if s == SchemeMeanStd {
		return 2 * d
	}
	return d
}

// Aggregator reduces an unordered set of track embeddings of dimensionality
// Dim into a single album feature vector. It is pure: same input set, same
// output, regardless of input order.
type Aggregator struct {
	scheme Scheme
	dim    int
}

func NewAggregator(scheme Scheme, dim int) (*Aggregator, error) {
	if !scheme.Valid() {
		return nil, fmt.Errorf("unknown aggregation scheme %q: %w", scheme, critic.ErrConfigMismatch)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimensionality %d: %w", dim, critic.ErrInvalidInput)
	}
	return &Aggregator{scheme: scheme, dim: dim}, nil
}

func (a *Aggregator) Scheme() Scheme { return a.scheme }
func (a *Aggregator) Dim() int       { return a.dim }

// OutputDim is the length of the vectors Aggregate produces.
func (a *Aggregator) OutputDim() int { return a.scheme.OutputDim(a.dim) }

// Aggregate pools the given embeddings. The input must be non-empty and every
// embedding must have length Dim; violations return critic.ErrInvalidInput and
// critic.ErrDimensionMismatch respectively. Output length depends only on the
// scheme and Dim, never on the number of embeddings.
func (a *Aggregator) Aggregate(embeddings [][]float64) ([]float64, error) {
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("aggregating empty embedding set: %w", critic.ErrInvalidInput)
	}
	for i, e := range embeddings {
		if len(e) != a.dim {
			return nil, fmt.Errorf("embedding %d has dimensionality %d, want %d: %w",
				i, len(e), a.dim, critic.ErrDimensionMismatch)
		}
	}

	out := make([]float64, 0, a.OutputDim())
	col := make([]float64, len(embeddings))

	// Each column is copied out and sorted before reduction so the summation
	// order, and thus the exact float result, does not depend on the order the
	// embeddings were supplied in.
	means := make([]float64, a.dim)
	for j := 0; j < a.dim; j++ {
		for i, e := range embeddings {
			col[i] = e[j]
		}
		sort.Float64s(col)
		means[j] = stat.Mean(col, nil)
	}
	out = append(out, means...)

	if a.scheme == SchemeMeanStd {
		for j := 0; j < a.dim; j++ {
			for i, e := range embeddings {
				col[i] = e[j]
			}
			sort.Float64s(col)
			out = append(out, stat.PopStdDev(col, nil))
		}
	}

	return out, nil
}
