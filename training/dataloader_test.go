package training

import (
	"fmt"
	"testing"

	"github.com/sentivox/go-emotion/tensor"
)

// indexDataset yields samples whose every element equals the sample
// index, so tests can check batch composition and ordering exactly.
type indexDataset struct {
	n      int
	failAt int
}

func newIndexDataset(n int) *indexDataset {
	return &indexDataset{n: n, failAt: -1}
}

func (d *indexDataset) Len() int { return d.n }

func (d *indexDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx == d.failAt {
		return nil, nil, fmt.Errorf("sample %d is corrupt", idx)
	}
	x, err := tensor.Full([]int{2, 3}, float32(idx), tensor.CPU)
	if err != nil {
		return nil, nil, err
	}
	y, err := tensor.NewTensor([]int{1}, tensor.Int32, tensor.CPU, []int32{int32(idx % 2)})
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (d *indexDataset) Classes() []string { return []string{"neg", "pos"} }

func TestDataLoaderBatchShapes(t *testing.T) {
	loader := NewDataLoader(newIndexDataset(10), 4, false, 1, tensor.CPU)

	if loader.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", loader.Len())
	}

	wantSizes := []int{4, 4, 2}
	for i, want := range wantSizes {
		if !loader.HasNext() {
			t.Fatalf("HasNext() = false before batch %d", i)
		}
		batch, err := loader.Next()
		if err != nil {
			t.Fatalf("Next() batch %d: %v", i, err)
		}
		if batch.Size() != want {
			t.Errorf("batch %d size = %d, want %d", i, batch.Size(), want)
		}
		wantData := []int{want, 2, 3}
		for d := range wantData {
			if batch.Data.Shape[d] != wantData[d] {
				t.Errorf("batch %d data shape = %v, want %v", i, batch.Data.Shape, wantData)
				break
			}
		}
		if batch.Labels.Shape[0] != want || batch.Labels.Shape[1] != 1 {
			t.Errorf("batch %d label shape = %v, want [%d 1]", i, batch.Labels.Shape, want)
		}
	}
	if loader.HasNext() {
		t.Error("HasNext() = true after last batch")
	}
	batch, err := loader.Next()
	if err != nil || batch != nil {
		t.Errorf("Next() past end = (%v, %v), want (nil, nil)", batch, err)
	}
}

func TestDataLoaderPreservesOrderWithWorkers(t *testing.T) {
	loader := NewDataLoader(newIndexDataset(17), 5, false, 4, tensor.CPU)

	next := 0
	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		data, err := batch.Data.GetFloat32Data()
		if err != nil {
			t.Fatalf("batch data: %v", err)
		}
		labels, err := batch.Labels.GetInt32Data()
		if err != nil {
			t.Fatalf("batch labels: %v", err)
		}
		for pos := 0; pos < batch.Size(); pos++ {
			if data[pos*6] != float32(next) {
				t.Fatalf("sample at position %d has value %v, want %d", pos, data[pos*6], next)
			}
			if labels[pos] != int32(next%2) {
				t.Fatalf("label at position %d = %d, want %d", pos, labels[pos], next%2)
			}
			next++
		}
	}
	if next != 17 {
		t.Errorf("saw %d samples, want 17", next)
	}
}

func TestDataLoaderShuffleCoversDataset(t *testing.T) {
	const n = 50
	loader := NewDataLoader(newIndexDataset(n), 7, true, 2, tensor.CPU)
	loader.Reset()

	seen := make(map[int]bool)
	inOrder := true
	next := 0
	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		data, err := batch.Data.GetFloat32Data()
		if err != nil {
			t.Fatalf("batch data: %v", err)
		}
		for pos := 0; pos < batch.Size(); pos++ {
			idx := int(data[pos*6])
			if seen[idx] {
				t.Fatalf("sample %d appeared twice in one epoch", idx)
			}
			seen[idx] = true
			if idx != next {
				inOrder = false
			}
			next++
		}
	}
	if len(seen) != n {
		t.Errorf("epoch covered %d samples, want %d", len(seen), n)
	}
	if inOrder {
		t.Error("shuffled epoch visited all 50 samples in identity order")
	}
}

func TestDataLoaderPropagatesSampleErrors(t *testing.T) {
	ds := newIndexDataset(6)
	ds.failAt = 4
	loader := NewDataLoader(ds, 3, false, 2, tensor.CPU)

	if _, err := loader.Next(); err != nil {
		t.Fatalf("first batch should load cleanly: %v", err)
	}
	if _, err := loader.Next(); err == nil {
		t.Fatal("expected an error from the batch containing the corrupt sample")
	}
}
