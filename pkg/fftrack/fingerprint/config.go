package fingerprint

import (
	"errors"
	"fmt"
	"runtime"
)

// Config holds every tunable of the fingerprinting pipeline. A zero value is
// not usable; start from DefaultConfig and override fields as needed.
type Config struct {
	SampleRate       int     `json:"sample_rate"`            // samples per second of the input buffer
	WindowSize       int     `json:"window_size"`            // FFT window length in samples
	OverlapRatio     float64 `json:"overlap_ratio"`          // fraction of overlap between consecutive windows, [0,1)
	FanValue         int     `json:"fan_value"`              // each peak is paired with up to FanValue-1 subsequent peaks
	AmpMin           float64 `json:"amp_min"`                // minimum peak amplitude in dB
	PeakNeighborhood int     `json:"peak_neighborhood_size"` // dilation steps growing the peak comparison neighborhood
	HashLength       int     `json:"hash_length"`            // hex characters kept from the SHA-1 digest
	MinHashTimeDelta int     `json:"min_hash_time_delta"`    // minimum frame delta between paired peaks
	MaxHashTimeDelta int     `json:"max_hash_time_delta"`    // maximum frame delta between paired peaks
	Workers          int     `json:"workers"`                // goroutines for the parallel peak/hash paths
}

// DefaultConfig returns the stock fingerprinting parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:       44100,
		WindowSize:       4096,
		OverlapRatio:     0.5,
		FanValue:         15,
		AmpMin:           10,
		PeakNeighborhood: 20,
		HashLength:       20,
		MinHashTimeDelta: 0,
		MaxHashTimeDelta: 200,
		Workers:          runtime.NumCPU(),
	}
}

// HopSize is the number of samples advanced between consecutive FFT windows.
func (c Config) HopSize() int {
	return int(float64(c.WindowSize) * (1 - c.OverlapRatio))
}

// OffsetToSeconds converts a time-frame offset into seconds of audio.
func (c Config) OffsetToSeconds(offset int) float64 {
	return float64(offset*c.HopSize()) / float64(c.SampleRate)
}

// Validate rejects invalid numeric settings eagerly, before any audio is
// processed.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("overlap ratio must be in [0,1), got %g", c.OverlapRatio)
	}
	if c.HopSize() <= 0 {
		return errors.New("overlap ratio leaves an empty hop")
	}
	if c.FanValue < 1 {
		return fmt.Errorf("fan value must be at least 1, got %d", c.FanValue)
	}
	if c.PeakNeighborhood < 1 {
		return fmt.Errorf("peak neighborhood must be at least 1, got %d", c.PeakNeighborhood)
	}
	if c.HashLength < 1 || c.HashLength > 40 {
		return fmt.Errorf("hash length must be in [1,40], got %d", c.HashLength)
	}
	if c.MinHashTimeDelta < 0 {
		return fmt.Errorf("min hash time delta must be non-negative, got %d", c.MinHashTimeDelta)
	}
	if c.MaxHashTimeDelta < c.MinHashTimeDelta {
		return fmt.Errorf("max hash time delta %d below min %d", c.MaxHashTimeDelta, c.MinHashTimeDelta)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
