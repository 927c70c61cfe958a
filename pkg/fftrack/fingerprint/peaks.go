package fingerprint

import (
	"sort"
	"sync"
)

// Peak is a spectral landmark: a cell of the log-power spectrogram that is
// the maximum of its morphological neighborhood and clears the amplitude
// threshold.
type Peak struct {
	Freq int // frequency bin index
	Time int // time frame index
}

// FindPeaks locates local-maxima peaks in a frequency-major log-power
// spectrogram. The comparison neighborhood is a 4-connected cross grown by
// cfg.PeakNeighborhood dilation steps (a diamond of that Manhattan radius).
// A cell is a candidate when it equals the neighborhood maximum; candidates
// that merely sit inside large flat zero regions (silence, grid edges) are
// rejected by eroding the exact-zero background with the same neighborhood
// and discarding cells whose candidate state matches the eroded background.
// Surviving cells must exceed cfg.AmpMin dB.
//
// Output order is (freq, time) scan order; callers that need time order must
// sort, which Generate does on its own.
func FindPeaks(spec [][]float64, cfg Config) []Peak {
	if len(spec) == 0 || len(spec[0]) == 0 {
		return nil
	}

	dilated := dilateMax(spec, cfg.PeakNeighborhood)
	eroded := erodeBackground(spec, cfg.PeakNeighborhood)

	var peaks []Peak
	for f := range spec {
		for t, v := range spec[f] {
			localMax := v == dilated[f][t]
			if localMax == eroded[f][t] {
				continue
			}
			if v > cfg.AmpMin {
				peaks = append(peaks, Peak{Freq: f, Time: t})
			}
		}
	}
	return peaks
}

// FindPeaksParallel splits the spectrogram into contiguous time-axis chunks,
// one per worker, and runs FindPeaks on each independently. Chunk results are
// shifted by their start column and concatenated. Peaks whose neighborhood
// straddles a chunk boundary may differ from the serial result; that loss is
// the accepted price of the speedup and is not corrected.
func FindPeaksParallel(spec [][]float64, cfg Config) []Peak {
	if len(spec) == 0 || len(spec[0]) == 0 {
		return nil
	}

	nFrames := len(spec[0])
	ranges := partition(nFrames, cfg.Workers)
	if len(ranges) <= 1 {
		return FindPeaks(spec, cfg)
	}

	results := make([][]Peak, len(ranges))
	var wg sync.WaitGroup
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, r chunkRange) {
			defer wg.Done()
			chunk := make([][]float64, len(spec))
			for f := range spec {
				chunk[f] = spec[f][r.start:r.end]
			}
			peaks := FindPeaks(chunk, cfg)
			for j := range peaks {
				peaks[j].Time += r.start
			}
			results[i] = peaks
		}(i, r)
	}
	wg.Wait()

	var merged []Peak
	for _, ps := range results {
		merged = append(merged, ps...)
	}
	return merged
}

// SortPeaks orders peaks by ascending time frame, breaking ties by frequency
// bin. This is the ordering Generate requires.
func SortPeaks(peaks []Peak) {
	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].Time == peaks[j].Time {
			return peaks[i].Freq < peaks[j].Freq
		}
		return peaks[i].Time < peaks[j].Time
	})
}

type chunkRange struct {
	start, end int
}

// partition splits n columns into at most workers contiguous ranges of
// near-equal width.
func partition(n, workers int) []chunkRange {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	ranges := make([]chunkRange, 0, workers)
	base := n / workers
	rem := n % workers
	start := 0
	for i := 0; i < workers; i++ {
		size := base
		if i < rem {
			size++
		}
		ranges = append(ranges, chunkRange{start: start, end: start + size})
		start += size
	}
	return ranges
}

// dilateMax computes a grayscale maximum filter by iterating a 4-connected
// dilation steps times; the result equals a single maximum filter over the
// diamond footprint of that radius.
func dilateMax(spec [][]float64, steps int) [][]float64 {
	nFreq, nTime := len(spec), len(spec[0])

	cur := make([][]float64, nFreq)
	next := make([][]float64, nFreq)
	for f := range spec {
		cur[f] = make([]float64, nTime)
		copy(cur[f], spec[f])
		next[f] = make([]float64, nTime)
	}

	for s := 0; s < steps; s++ {
		for f := 0; f < nFreq; f++ {
			for t := 0; t < nTime; t++ {
				m := cur[f][t]
				if f > 0 && cur[f-1][t] > m {
					m = cur[f-1][t]
				}
				if f < nFreq-1 && cur[f+1][t] > m {
					m = cur[f+1][t]
				}
				if t > 0 && cur[f][t-1] > m {
					m = cur[f][t-1]
				}
				if t < nTime-1 && cur[f][t+1] > m {
					m = cur[f][t+1]
				}
				next[f][t] = m
			}
		}
		cur, next = next, cur
	}
	return cur
}

// erodeBackground erodes the exact-zero mask with the same iterated
// 4-connected structure, treating out-of-bounds cells as background
// (border value 1).
func erodeBackground(spec [][]float64, steps int) [][]bool {
	nFreq, nTime := len(spec), len(spec[0])

	cur := make([][]bool, nFreq)
	next := make([][]bool, nFreq)
	for f := range spec {
		cur[f] = make([]bool, nTime)
		next[f] = make([]bool, nTime)
		for t, v := range spec[f] {
			cur[f][t] = v == 0
		}
	}

	for s := 0; s < steps; s++ {
		for f := 0; f < nFreq; f++ {
			for t := 0; t < nTime; t++ {
				v := cur[f][t]
				if v && f > 0 {
					v = cur[f-1][t]
				}
				if v && f < nFreq-1 {
					v = cur[f+1][t]
				}
				if v && t > 0 {
					v = cur[f][t-1]
				}
				if v && t < nTime-1 {
					v = cur[f][t+1]
				}
				next[f][t] = v
			}
		}
		cur, next = next, cur
	}
	return cur
}
