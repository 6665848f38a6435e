package feature

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/vladbelms/neural-critic/internal/critic"
)

func TestAggregateMean(t *testing.T) {
	agg, err := NewAggregator(SchemeMean, 2)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	got, err := agg.Aggregate([][]float64{
		{1, 10},
		{3, 20},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := []float64{2, 15}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Aggregate = %v, want %v", got, want)
	}
}

func TestAggregateMeanStd(t *testing.T) {
	agg, err := NewAggregator(SchemeMeanStd, 2)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	got, err := agg.Aggregate([][]float64{
		{1, 10},
		{3, 10},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	// mean = {2, 10}, population std = {1, 0}
	want := []float64{2, 10, 1, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Aggregate = %v, want %v", got, want)
	}
}

func TestAggregateOrderInvariant(t *testing.T) {
	const dim = 16
	agg, err := NewAggregator(SchemeMeanStd, dim)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	rng := rand.New(rand.NewSource(7))
	embeddings := make([][]float64, 9)
	for i := range embeddings {
		embeddings[i] = make([]float64, dim)
		for j := range embeddings[i] {
			embeddings[i][j] = rng.NormFloat64()
		}
	}

	base, err := agg.Aggregate(embeddings)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	for trial := 0; trial < 20; trial++ {
		permuted := make([][]float64, len(embeddings))
		for i, j := range rng.Perm(len(embeddings)) {
			permuted[i] = embeddings[j]
		}
		got, err := agg.Aggregate(permuted)
		if err != nil {
			t.Fatalf("Aggregate(permuted): %v", err)
		}
		// Bitwise equality, not approximate: permuting the input must not
		// change the reduction order.
		if !reflect.DeepEqual(got, base) {
			t.Fatalf("permutation %d changed the result", trial)
		}
	}
}

func TestAggregateOutputDimConstant(t *testing.T) {
	const dim = 8
	for _, scheme := range []Scheme{SchemeMean, SchemeMeanStd} {
		agg, err := NewAggregator(scheme, dim)
		if err != nil {
			t.Fatalf("NewAggregator(%s): %v", scheme, err)
		}
		for _, count := range []int{1, 5, 50} {
			embeddings := make([][]float64, count)
			for i := range embeddings {
				embeddings[i] = make([]float64, dim)
				embeddings[i][0] = float64(i)
			}
			got, err := agg.Aggregate(embeddings)
			if err != nil {
				t.Fatalf("Aggregate(%s, %d tracks): %v", scheme, count, err)
			}
			if len(got) != agg.OutputDim() {
				t.Errorf("scheme %s with %d tracks: output dim %d, want %d",
					scheme, count, len(got), agg.OutputDim())
			}
		}
	}
}

func TestAggregateErrors(t *testing.T) {
	agg, err := NewAggregator(SchemeMeanStd, 3)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	tests := []struct {
		name  string
		input [][]float64
		want  error
	}{
		{"empty set", nil, critic.ErrInvalidInput},
		{"short embedding", [][]float64{{1, 2}}, critic.ErrDimensionMismatch},
		{"long embedding", [][]float64{{1, 2, 3}, {1, 2, 3, 4}}, critic.ErrDimensionMismatch},
	}
	for _, test := range tests {
		_, err := agg.Aggregate(test.input)
		if !errors.Is(err, test.want) {
			t.Errorf("%s: got %v, want %v", test.name, err, test.want)
		}
	}
}

func TestNewAggregatorRejectsUnknownScheme(t *testing.T) {
	_, err := NewAggregator(Scheme("attention"), 4)
	if !errors.Is(err, critic.ErrConfigMismatch) {
		t.Errorf("got %v, want ErrConfigMismatch", err)
	}
}
