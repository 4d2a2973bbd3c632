package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sentivox/go-emotion/tensor"
)

// Subset exposes a re-indexed view over an underlying dataset. Subsets
// nest: re-splitting a subset walks through to the same base samples.
type Subset struct {
	base    Dataset
	indices []int
}

// NewSubset builds a view over base restricted to the given indices.
func NewSubset(base Dataset, indices []int) (*Subset, error) {
	n := base.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("subset index out of bounds: %d (base len: %d)", idx, n)
		}
	}
	return &Subset{base: base, indices: indices}, nil
}

// Len returns the number of samples in the view.
func (s *Subset) Len() int {
	return len(s.indices)
}

// Get returns the sample at the view position idx from the base dataset.
func (s *Subset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(s.indices) {
		return nil, nil, fmt.Errorf("index out of bounds for subset: %d (len: %d)", idx, len(s.indices))
	}
	return s.base.Get(s.indices[idx])
}

// Classes forwards the label vocabulary when the base dataset has one.
func (s *Subset) Classes() []string {
	if c, ok := s.base.(Classed); ok {
		return c.Classes()
	}
	return nil
}

// RandomSplit partitions ds into two disjoint subsets covering every
// sample. The first subset holds round(len*fraction) samples. A non-nil
// seed makes the permutation reproducible; nil draws fresh entropy, so
// repeated calls move samples between the two sides while the sizes
// stay fixed.
func RandomSplit(ds Dataset, fraction float64, seed *int64) (*Subset, *Subset, error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("split fraction must be in (0, 1), got %v", fraction)
	}
	n := ds.Len()
	na := int(math.Round(float64(n) * fraction))
	if na == 0 || na == n {
		return nil, nil, fmt.Errorf("split of %d samples at %v leaves an empty side", n, fraction)
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewSource(*seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	perm := rng.Perm(n)

	a, err := NewSubset(ds, perm[:na])
	if err != nil {
		return nil, nil, err
	}
	b, err := NewSubset(ds, perm[na:])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}
