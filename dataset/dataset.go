package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sentivox/go-emotion/tensor"
)

// ErrData marks failures caused by the dataset on disk: a missing root
// directory, no recognizable audio files, or an unreadable sample.
var ErrData = errors.New("dataset error")

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                                                           // Total number of samples
	Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) // Returns a single sample (CPU Tensor)
}

// Classed is a Dataset that knows its label vocabulary.
type Classed interface {
	Dataset
	Classes() []string
}

// labelParser extracts a class name from an audio filename. It reports
// false when the filename does not follow the dataset's naming scheme.
type labelParser func(filename string) (string, bool)

// WavEmotionDataset scans a directory tree of .wav files whose filenames
// encode the emotion label. Samples are padded or cropped to a fixed
// number of waveform samples so every item has an identical shape.
type WavEmotionDataset struct {
	root        string
	files       []string
	labels      []int32
	classes     []string
	audioSize   int
	spectrogram bool
}

func newWavEmotionDataset(root string, audioSize int, spectrogram bool, parse labelParser, classes []string) (*WavEmotionDataset, error) {
	if audioSize <= 0 {
		return nil, fmt.Errorf("%w: audio size must be positive, got %d", ErrData, audioSize)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: dataset root %q is not a directory", ErrData, root)
	}

	classIdx := make(map[string]int32, len(classes))
	for i, c := range classes {
		classIdx[c] = int32(i)
	}

	ds := &WavEmotionDataset{
		root:        root,
		classes:     classes,
		audioSize:   audioSize,
		spectrogram: spectrogram,
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".wav") {
			return nil
		}
		class, ok := parse(d.Name())
		if !ok {
			return nil
		}
		ds.files = append(ds.files, path)
		ds.labels = append(ds.labels, classIdx[class])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning %q: %v", ErrData, root, err)
	}
	if len(ds.files) == 0 {
		return nil, fmt.Errorf("%w: no recognizable .wav files under %q", ErrData, root)
	}

	// Stable item order regardless of filesystem enumeration.
	order := make([]int, len(ds.files))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return ds.files[order[i]] < ds.files[order[j]] })
	files := make([]string, len(order))
	labels := make([]int32, len(order))
	for i, o := range order {
		files[i] = ds.files[o]
		labels[i] = ds.labels[o]
	}
	ds.files, ds.labels = files, labels
	return ds, nil
}

// Len returns the total number of samples.
func (ds *WavEmotionDataset) Len() int {
	return len(ds.files)
}

// Classes returns the label vocabulary in index order.
func (ds *WavEmotionDataset) Classes() []string {
	return ds.classes
}

// Get reads, pads or crops, and optionally transforms one sample.
// Waveform samples come back as [1, audioSize]; spectrograms as
// [1, SpectrogramBins, frames]. Labels are Int32 tensors of shape [1].
func (ds *WavEmotionDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(ds.files) {
		return nil, nil, fmt.Errorf("index out of bounds: %d (len: %d)", idx, len(ds.files))
	}

	samples, err := readWavMono(ds.files[idx])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q: %v", ErrData, ds.files[idx], err)
	}
	samples = padCrop(samples, ds.audioSize)

	var x *tensor.Tensor
	if ds.spectrogram {
		spec, frames, err := Spectrogram(samples)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %q: %v", ErrData, ds.files[idx], err)
		}
		x, err = tensor.NewTensor([]int{1, SpectrogramBins, frames}, tensor.Float32, tensor.CPU, spec)
		if err != nil {
			return nil, nil, err
		}
	} else {
		x, err = tensor.NewTensor([]int{1, ds.audioSize}, tensor.Float32, tensor.CPU, samples)
		if err != nil {
			return nil, nil, err
		}
	}

	y, err := tensor.NewTensor([]int{1}, tensor.Int32, tensor.CPU, []int32{ds.labels[idx]})
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// padCrop forces samples to exactly size entries, zero-padding the tail
// or discarding it.
func padCrop(samples []float32, size int) []float32 {
	out := make([]float32, size)
	copy(out, samples)
	return out
}

// Known lists the dataset names Open accepts.
func Known() []string {
	return []string{"demos", "demos_short_test", "ravdess"}
}

// Open constructs a registered dataset rooted under dataRoot.
func Open(name, dataRoot string, audioSize int, useSpectrogram bool) (Classed, error) {
	switch strings.ToLower(name) {
	case "demos":
		return NewDEMoS(filepath.Join(dataRoot, "DEMoS_dataset"), audioSize, useSpectrogram)
	case "demos_short_test":
		return NewDEMoS(filepath.Join(dataRoot, "DEMoS_dataset_short_test"), audioSize, useSpectrogram)
	case "ravdess":
		return NewRAVDESS(filepath.Join(dataRoot, "RAVDESS_dataset"), audioSize, useSpectrogram)
	default:
		return nil, fmt.Errorf("%w: unknown dataset %q (known: %s)", ErrData, name, strings.Join(Known(), ", "))
	}
}
