package dataset

import (
	"fmt"
	"os"

	"github.com/mjibson/go-dsp/wav"
)

// readWavMono decodes a RIFF/WAVE file into a single float32 channel.
// Multi-channel files are mixed down by averaging the channels.
func readWavMono(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w, err := wav.New(f)
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %v", err)
	}
	floats, err := w.ReadFloats(w.Samples)
	if err != nil {
		return nil, fmt.Errorf("reading samples: %v", err)
	}

	channels := int(w.NumChannels)
	if channels <= 1 {
		return floats, nil
	}
	mono := make([]float32, len(floats)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += floats[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono, nil
}
