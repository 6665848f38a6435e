package tuner

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/vladbelms/neural-critic/internal/critic"
	"github.com/vladbelms/neural-critic/internal/regress"
)

// IntRange is an inclusive integer search range.
type IntRange struct {
	Min, Max int
}

func (r IntRange) sample(rng *rand.Rand) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// FloatRange is an inclusive float search range; Log samples uniformly in
// log space, which suits learning rates.
type FloatRange struct {
	Min, Max float64
	Log      bool
}

func (r FloatRange) sample(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	if r.Log {
		lo, hi := math.Log(r.Min), math.Log(r.Max)
		return math.Exp(lo + rng.Float64()*(hi-lo))
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Space enumerates the hyperparameter ranges the search may draw from.
type Space struct {
	Trees        IntRange
	Depth        IntRange
	LearningRate FloatRange
	MinLeaf      IntRange
	L2           FloatRange
	Subsample    FloatRange
}

// DefaultSpace covers the ranges the scorer was originally tuned over.
func DefaultSpace() Space {
	return Space{
		Trees:        IntRange{Min: 100, Max: 500},
		Depth:        IntRange{Min: 2, Max: 10},
		LearningRate: FloatRange{Min: 1e-3, Max: 0.3, Log: true},
		MinLeaf:      IntRange{Min: 1, Max: 5},
		L2:           FloatRange{Min: 1.0, Max: 10.0},
		Subsample:    FloatRange{Min: 0.5, Max: 1.0},
	}
}

func (s Space) draw(rng *rand.Rand, seed int64) regress.Params {
	return regress.Params{
		Trees:        s.Trees.sample(rng),
		Depth:        s.Depth.sample(rng),
		LearningRate: s.LearningRate.sample(rng),
		MinLeaf:      s.MinLeaf.sample(rng),
		L2:           s.L2.sample(rng),
		Subsample:    s.Subsample.sample(rng),
		Seed:         seed,
	}
}

// Options controls one search run.
type Options struct {
	Trials   int
	Seed     int64
	Workers  int           // parallel trial evaluations; <=1 means serial
	Deadline time.Duration // 0 means no deadline; on expiry the best trial so far wins
}

// Trial records one evaluated configuration.
type Trial struct {
	Index  int
	Params regress.Params
	Loss   float64
	Err    error // non-nil if the trial failed or was cut off by the deadline
}

// Result is the outcome of a search.
type Result struct {
	Best     regress.Params
	BestLoss float64
	Trials   []Trial
}

// Search evaluates Trials random candidates from space, fitting each on the
// train split and scoring mean absolute error on the validation split. A
// failing trial is recorded and skipped, never fatal. Candidates are drawn
// up-front from a single seeded source, so the set of configurations (and the
// final result) is identical regardless of Workers.
func Search(ctx context.Context, space Space, opts Options, trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) (*Result, error) {
	if opts.Trials <= 0 {
		return nil, fmt.Errorf("search budget %d: %w", opts.Trials, critic.ErrInvalidInput)
	}
	if len(trainX) == 0 || len(valX) == 0 {
		return nil, fmt.Errorf("empty train or validation split: %w", critic.ErrInvalidInput)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	candidates := make([]regress.Params, opts.Trials)
	for i := range candidates {
		candidates[i] = space.draw(rng, opts.Seed)
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	trials := make([]Trial, opts.Trials)
	g, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, params := range candidates {
		i, params := i, params
		g.Go(func() error {
			// Deadline expiry abandons remaining trials, not the search.
			if err := gctx.Err(); err != nil {
				trials[i] = Trial{Index: i, Params: params, Err: err}
				return nil
			}
			trials[i] = evaluate(i, params, trainX, trainY, valX, valY)
			return nil
		})
	}
	g.Wait()

	result := &Result{BestLoss: math.Inf(1), Trials: trials}
	found := false
	for _, t := range trials {
		if t.Err != nil {
			continue
		}
		if t.Loss < result.BestLoss {
			result.Best = t.Params
			result.BestLoss = t.Loss
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("all %d trials failed: %w", opts.Trials, critic.ErrInvalidInput)
	}
	return result, nil
}

func evaluate(index int, params regress.Params, trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) Trial {
	model := regress.New(params)
	if err := model.Fit(trainX, trainY); err != nil {
		return Trial{Index: index, Params: params, Err: err}
	}

	absErrs := make([]float64, len(valX))
	for i, x := range valX {
		pred, err := model.Predict(x)
		if err != nil {
			return Trial{Index: index, Params: params, Err: err}
		}
		absErrs[i] = math.Abs(pred - valY[i])
	}

	loss := stat.Mean(absErrs, nil)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return Trial{Index: index, Params: params, Err: fmt.Errorf("non-finite validation loss")}
	}
	return Trial{Index: index, Params: params, Loss: loss}
}
