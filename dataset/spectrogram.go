package dataset

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	fftSize   = 2048
	hopLength = 512

	// SpectrogramBins is the number of frequency rows after folding the
	// raw FFT bins down to a compact image height.
	SpectrogramBins = 128
)

// SpectrogramFrames returns the number of STFT frames produced for a
// waveform of the given length.
func SpectrogramFrames(numSamples int) int {
	if numSamples < fftSize {
		return 0
	}
	return (numSamples-fftSize)/hopLength + 1
}

// Spectrogram computes a log-magnitude STFT of a mono waveform, folded
// to SpectrogramBins frequency rows. The result is row-major
// [SpectrogramBins, frames] along with the frame count.
func Spectrogram(samples []float32) ([]float32, int, error) {
	frames := SpectrogramFrames(len(samples))
	if frames <= 0 {
		return nil, 0, fmt.Errorf("waveform too short for STFT: %d samples, need %d", len(samples), fftSize)
	}

	hann := window.Hann(fftSize)
	rawBins := fftSize/2 + 1
	power := make([]float64, rawBins*frames)

	windowed := make([]float64, fftSize)
	for i := 0; i < frames; i++ {
		start := i * hopLength
		for j := 0; j < fftSize; j++ {
			windowed[j] = float64(samples[start+j]) * hann[j]
		}
		spectrum := fft.FFTReal(windowed)
		for j := 0; j < rawBins; j++ {
			re, im := real(spectrum[j]), imag(spectrum[j])
			power[j*frames+i] = re*re + im*im
		}
	}

	// Fold the 1025 FFT rows into SpectrogramBins rows by averaging
	// contiguous groups, then compress with log1p.
	out := make([]float32, SpectrogramBins*frames)
	for b := 0; b < SpectrogramBins; b++ {
		lo := b * rawBins / SpectrogramBins
		hi := (b + 1) * rawBins / SpectrogramBins
		if hi <= lo {
			hi = lo + 1
		}
		for i := 0; i < frames; i++ {
			var sum float64
			for j := lo; j < hi; j++ {
				sum += power[j*frames+i]
			}
			out[b*frames+i] = float32(math.Log1p(sum / float64(hi-lo)))
		}
	}
	return out, frames, nil
}
