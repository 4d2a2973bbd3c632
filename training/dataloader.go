package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/sentivox/go-emotion/dataset"
	"github.com/sentivox/go-emotion/tensor"
)

// DataLoader provides batching, shuffling, and parallel sample loading
// over a dataset. Samples inside a batch keep their index order no
// matter how many workers fetch them.
type DataLoader struct {
	dataset    dataset.Dataset
	batchSize  int
	shuffle    bool
	numWorkers int
	device     tensor.DeviceType
	indices    []int
	position   int
	mutex      sync.Mutex
}

// Batch holds stacked sample and label tensors. The leading dimension
// is the batch.
type Batch struct {
	Data   *tensor.Tensor
	Labels *tensor.Tensor
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return b.Data.Shape[0]
}

// NewDataLoader creates a DataLoader. numWorkers <= 0 loads samples on
// the calling goroutine.
func NewDataLoader(ds dataset.Dataset, batchSize int, shuffle bool, numWorkers int, device tensor.DeviceType) *DataLoader {
	if numWorkers < 1 {
		numWorkers = 1
	}
	indices := make([]int, ds.Len())
	for i := range indices {
		indices[i] = i
	}
	return &DataLoader{
		dataset:    ds,
		batchSize:  batchSize,
		shuffle:    shuffle,
		numWorkers: numWorkers,
		device:     device,
		indices:    indices,
	}
}

// Len returns the number of batches in an epoch.
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader for a new epoch, reshuffling if configured.
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	if dl.shuffle {
		rand.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// HasNext reports whether the current epoch has more batches.
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// Next returns the next batch, or nil at the end of the epoch.
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	if dl.position >= len(dl.indices) {
		dl.mutex.Unlock()
		return nil, nil
	}
	end := dl.position + dl.batchSize
	if end > len(dl.indices) {
		end = len(dl.indices)
	}
	batchIndices := dl.indices[dl.position:end]
	dl.position = end
	dl.mutex.Unlock()

	return dl.loadBatch(batchIndices)
}

type loadedSample struct {
	pos   int
	data  *tensor.Tensor
	label *tensor.Tensor
	err   error
}

// loadBatch fetches the samples with a small worker pool and stacks
// them into batch tensors in index order.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	batchSize := len(indices)
	if batchSize == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}

	samples := make([]loadedSample, batchSize)
	workers := dl.numWorkers
	if workers > batchSize {
		workers = batchSize
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				data, label, err := dl.dataset.Get(indices[pos])
				samples[pos] = loadedSample{pos: pos, data: data, label: label, err: err}
			}
		}()
	}
	for pos := range indices {
		jobs <- pos
	}
	close(jobs)
	wg.Wait()

	for _, s := range samples {
		if s.err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %w", indices[s.pos], s.err)
		}
	}

	first := samples[0]
	dataShape := append([]int{batchSize}, first.data.Shape...)
	labelShape := append([]int{batchSize}, first.label.Shape...)

	batchData, err := tensor.Zeros(dataShape, first.data.DType, dl.device)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch data tensor: %w", err)
	}
	batchLabels, err := tensor.Zeros(labelShape, first.label.DType, dl.device)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch label tensor: %w", err)
	}

	for _, s := range samples {
		if err := copyInto(batchData, s.data, s.pos); err != nil {
			return nil, fmt.Errorf("sample %d: %w", indices[s.pos], err)
		}
		if err := copyInto(batchLabels, s.label, s.pos); err != nil {
			return nil, fmt.Errorf("sample %d label: %w", indices[s.pos], err)
		}
	}
	return &Batch{Data: batchData, Labels: batchLabels}, nil
}

// copyInto places one sample tensor at batch position pos.
func copyInto(batch, sample *tensor.Tensor, pos int) error {
	stride := sample.NumElems
	if batch.NumElems != batch.Shape[0]*stride {
		return fmt.Errorf("sample shape %v does not fit batch shape %v", sample.Shape, batch.Shape)
	}
	switch batch.DType {
	case tensor.Float32:
		src, err := sample.GetFloat32Data()
		if err != nil {
			return err
		}
		dst, err := batch.GetFloat32Data()
		if err != nil {
			return err
		}
		copy(dst[pos*stride:(pos+1)*stride], src)
	case tensor.Int32:
		src, err := sample.GetInt32Data()
		if err != nil {
			return err
		}
		dst, err := batch.GetInt32Data()
		if err != nil {
			return err
		}
		copy(dst[pos*stride:(pos+1)*stride], src)
	default:
		return fmt.Errorf("unsupported dtype %s", batch.DType)
	}
	return nil
}
