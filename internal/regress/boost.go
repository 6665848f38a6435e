package regress

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/vladbelms/neural-critic/internal/critic"
)

// Params is the enumerated hyperparameter configuration of the boosting
// regressor. All fields are plain values so configurations can be compared,
// logged, and persisted.
type Params struct {
	Trees        int     `json:"trees"`
	Depth        int     `json:"depth"`
	LearningRate float64 `json:"learning_rate"`
	MinLeaf      int     `json:"min_leaf"`
	L2           float64 `json:"l2"`
	Subsample    float64 `json:"subsample"`
	Seed         int64   `json:"seed"`
}

// DefaultParams mirrors the fixed configuration used before tuning.
func DefaultParams() Params {
	return Params{
		Trees:        200,
		Depth:        4,
		LearningRate: 0.1,
		MinLeaf:      1,
		L2:           1.0,
		Subsample:    1.0,
		Seed:         42,
	}
}

// Model is a gradient-boosted ensemble of regression trees fit with
// least-squares boosting. Fitting is deterministic for a fixed Params.
type Model struct {
	params Params
	bias   float64
	trees  []*treeNode
	dim    int
}

func New(params Params) *Model {
	return &Model{params: params}
}

func (m *Model) Params() Params { return m.params }

// Dim is the feature dimensionality the model was fitted with, 0 if unfitted.
func (m *Model) Dim() int { return m.dim }

// Fit trains the ensemble. Features must be non-empty, rectangular, and
// aligned with targets; violations return critic.ErrInvalidInput or
// critic.ErrDimensionMismatch.
func (m *Model) Fit(features [][]float64, targets []float64) error {
	if len(features) == 0 {
		return fmt.Errorf("fitting on empty feature set: %w", critic.ErrInvalidInput)
	}
	if len(features) != len(targets) {
		return fmt.Errorf("%d feature vectors but %d targets: %w",
			len(features), len(targets), critic.ErrDimensionMismatch)
	}
	dim := len(features[0])
	if dim == 0 {
		return fmt.Errorf("zero-length feature vectors: %w", critic.ErrInvalidInput)
	}
	for i, f := range features {
		if len(f) != dim {
			return fmt.Errorf("feature vector %d has dimensionality %d, want %d: %w",
				i, len(f), dim, critic.ErrDimensionMismatch)
		}
	}

	p := m.params
	if p.Trees <= 0 || p.Depth <= 0 || p.LearningRate <= 0 {
		return fmt.Errorf("params %+v: %w", p, critic.ErrInvalidInput)
	}
	if p.MinLeaf < 1 {
		p.MinLeaf = 1
	}

	n := len(features)
	bias := 0.0
	for _, t := range targets {
		bias += t
	}
	bias /= float64(n)

	resid := make([]float64, n)
	for i, t := range targets {
		resid[i] = t - bias
	}

	rng := rand.New(rand.NewSource(p.Seed))
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	trees := make([]*treeNode, 0, p.Trees)
	for t := 0; t < p.Trees; t++ {
		idx := all
		if p.Subsample > 0 && p.Subsample < 1 {
			k := int(math.Ceil(p.Subsample * float64(n)))
			perm := rng.Perm(n)[:k]
			// Keep row order stable within the sample so tree construction
			// only depends on which rows were drawn.
			idx = perm
			sort.Ints(idx)
		}

		tree := buildTree(features, resid, idx, p.Depth, p.MinLeaf, p.L2)
		for i := range resid {
			resid[i] -= p.LearningRate * tree.predict(features[i])
		}
		trees = append(trees, tree)
	}

	m.bias = bias
	m.trees = trees
	m.dim = dim
	return nil
}

// Predict scores one feature vector. The vector's length must equal the
// fitted dimensionality; the model never truncates or pads.
func (m *Model) Predict(feature []float64) (float64, error) {
	if m.trees == nil {
		return 0, fmt.Errorf("predict on unfitted model: %w", critic.ErrInvalidInput)
	}
	if len(feature) != m.dim {
		return 0, fmt.Errorf("feature has dimensionality %d, model fitted with %d: %w",
			len(feature), m.dim, critic.ErrDimensionMismatch)
	}

	score := m.bias
	for _, tree := range m.trees {
		score += m.params.LearningRate * tree.predict(feature)
	}
	return score, nil
}

type modelJSON struct {
	Params Params      `json:"params"`
	Bias   float64     `json:"bias"`
	Dim    int         `json:"dim"`
	Trees  []*treeNode `json:"trees"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{Params: m.params, Bias: m.bias, Dim: m.dim, Trees: m.trees})
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var enc modelJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	m.params = enc.Params
	m.bias = enc.Bias
	m.dim = enc.Dim
	m.trees = enc.Trees
	return nil
}
