package fingerprint

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/window"
)

// InsufficientDataError reports a sample buffer too short to fill a single
// FFT window. It is fatal to the fingerprinting call that raised it, nothing
// more.
type InsufficientDataError struct {
	Samples    int
	WindowSize int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient audio data: %d samples, window size %d", e.Samples, e.WindowSize)
}

// Spectrogram computes a short-time Fourier transform of samples and returns
// a frequency-major magnitude grid: spec[freqBin][timeFrame]. The grid has
// WindowSize/2+1 frequency bins; the frame count follows from the hop size
// WindowSize*(1-OverlapRatio). Each frame is Hann-windowed before the FFT.
func Spectrogram(samples []float64, cfg Config) ([][]float64, error) {
	ws := cfg.WindowSize
	if len(samples) < ws || len(samples) == 0 {
		return nil, &InsufficientDataError{Samples: len(samples), WindowSize: ws}
	}

	hop := cfg.HopSize()
	nBins := ws/2 + 1
	nFrames := (len(samples)-ws)/hop + 1

	spec := make([][]float64, nBins)
	for f := range spec {
		spec[f] = make([]float64, nFrames)
	}

	frame := make([]float64, ws)
	for t := 0; t < nFrames; t++ {
		start := t * hop
		copy(frame, samples[start:start+ws])
		window.Hann(frame)

		spectrum := fft.FFTReal(frame)
		for f := 0; f < nBins; f++ {
			spec[f][t] = cmplx.Abs(spectrum[f])
		}
	}

	return spec, nil
}

// ToLogPower converts a magnitude grid to decibels in place, 10*log10(mag).
// Exact-zero cells stay zero instead of going to -Inf so peak finding stays
// numerically well-behaved on silent regions.
func ToLogPower(spec [][]float64) {
	for _, row := range spec {
		for i, v := range row {
			if v == 0 {
				continue
			}
			row[i] = 10 * math.Log10(v)
		}
	}
}
