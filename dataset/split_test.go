package dataset

import (
	"testing"

	"github.com/sentivox/go-emotion/tensor"
)

// fakeDataset yields index-valued samples so tests can see exactly which
// base items a subset maps to.
type fakeDataset struct {
	n       int
	classes []string
}

func (f *fakeDataset) Len() int { return f.n }

func (f *fakeDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	x, err := tensor.Full([]int{1, 2}, float32(idx), tensor.CPU)
	if err != nil {
		return nil, nil, err
	}
	y, err := tensor.NewTensor([]int{1}, tensor.Int32, tensor.CPU, []int32{int32(idx % 2)})
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (f *fakeDataset) Classes() []string { return f.classes }

func TestRandomSplitSizes(t *testing.T) {
	ds := &fakeDataset{n: 100}
	seed := int64(42)
	a, b, err := RandomSplit(ds, 0.8, &seed)
	if err != nil {
		t.Fatalf("RandomSplit failed: %v", err)
	}
	if a.Len() != 80 || b.Len() != 20 {
		t.Errorf("sizes = %d/%d, want 80/20", a.Len(), b.Len())
	}

	// round(7 * 0.8) = 6
	a, b, err = RandomSplit(&fakeDataset{n: 7}, 0.8, &seed)
	if err != nil {
		t.Fatalf("RandomSplit failed: %v", err)
	}
	if a.Len() != 6 || b.Len() != 1 {
		t.Errorf("sizes = %d/%d, want 6/1", a.Len(), b.Len())
	}
}

func TestRandomSplitSeededReproducible(t *testing.T) {
	ds := &fakeDataset{n: 50}
	seed := int64(7)
	a1, _, err := RandomSplit(ds, 0.8, &seed)
	if err != nil {
		t.Fatalf("RandomSplit failed: %v", err)
	}
	a2, _, err := RandomSplit(ds, 0.8, &seed)
	if err != nil {
		t.Fatalf("RandomSplit failed: %v", err)
	}
	for i := range a1.indices {
		if a1.indices[i] != a2.indices[i] {
			t.Fatalf("seeded split not reproducible at %d: %d vs %d", i, a1.indices[i], a2.indices[i])
		}
	}
}

func TestRandomSplitDisjointCover(t *testing.T) {
	ds := &fakeDataset{n: 33}
	a, b, err := RandomSplit(ds, 0.6, nil)
	if err != nil {
		t.Fatalf("RandomSplit failed: %v", err)
	}
	seen := make(map[int]int)
	for _, idx := range a.indices {
		seen[idx]++
	}
	for _, idx := range b.indices {
		seen[idx]++
	}
	if len(seen) != 33 {
		t.Errorf("split covers %d distinct samples, want 33", len(seen))
	}
	for idx, count := range seen {
		if count != 1 {
			t.Errorf("sample %d appears %d times across the split", idx, count)
		}
	}
}

func TestRandomSplitUnseededSizesStable(t *testing.T) {
	ds := &fakeDataset{n: 40}
	for i := 0; i < 5; i++ {
		a, b, err := RandomSplit(ds, 0.8, nil)
		if err != nil {
			t.Fatalf("RandomSplit failed: %v", err)
		}
		if a.Len() != 32 || b.Len() != 8 {
			t.Fatalf("unseeded split sizes drifted: %d/%d", a.Len(), b.Len())
		}
	}
}

func TestRandomSplitRejectsBadFraction(t *testing.T) {
	ds := &fakeDataset{n: 10}
	for _, f := range []float64{0, 1, -0.5, 1.5} {
		if _, _, err := RandomSplit(ds, f, nil); err == nil {
			t.Errorf("fraction %v accepted", f)
		}
	}
}

func TestSubsetForwardsClasses(t *testing.T) {
	ds := &fakeDataset{n: 10, classes: []string{"neg", "pos"}}
	seed := int64(1)
	a, _, err := RandomSplit(ds, 0.5, &seed)
	if err != nil {
		t.Fatalf("RandomSplit failed: %v", err)
	}
	if got := a.Classes(); len(got) != 2 || got[0] != "neg" {
		t.Errorf("subset classes = %v", got)
	}

	// A subset of a subset still resolves to the base samples.
	nested, _, err := RandomSplit(a, 0.6, &seed)
	if err != nil {
		t.Fatalf("nested RandomSplit failed: %v", err)
	}
	x, _, err := nested.Get(0)
	if err != nil {
		t.Fatalf("nested Get failed: %v", err)
	}
	data, _ := x.GetFloat32Data()
	if int(data[0]) < 0 || int(data[0]) >= ds.n {
		t.Errorf("nested subset resolved to invalid base index %v", data[0])
	}
	if nested.Classes() == nil {
		t.Error("nested subset lost the class vocabulary")
	}
}
