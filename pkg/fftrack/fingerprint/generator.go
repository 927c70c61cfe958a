package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
)

// Fingerprint is one combinatorial hash: a truncated SHA-1 over a peak pair,
// anchored at the first peak's time frame. Many fingerprints may share a hash;
// that collision tolerance is what makes matching fuzzy.
type Fingerprint struct {
	Hash       string
	AnchorTime int
}

// Generate pairs peaks into fingerprints. Peaks are first sorted by ascending
// time (ties by frequency, so the order is consistent across calls); each
// peak is then paired with up to FanValue-1 subsequent peaks whose frame
// delta lies within [MinHashTimeDelta, MaxHashTimeDelta]. The result is
// deterministic for a given peak set. Fewer than two peaks yield an empty
// list.
func Generate(peaks []Peak, cfg Config) []Fingerprint {
	if len(peaks) < 2 {
		return nil
	}

	sorted := make([]Peak, len(peaks))
	copy(sorted, peaks)
	SortPeaks(sorted)

	fps := make([]Fingerprint, 0, len(sorted)*(cfg.FanValue-1))
	for i := range sorted {
		fps = appendAnchorPairs(fps, sorted, i, cfg)
	}
	return fps
}

// GenerateParallel produces the same fingerprint multiset as Generate by
// splitting the anchor index range across cfg.Workers goroutines. Every
// worker reads the shared sorted peak slice, so no pairing is lost at
// partition boundaries.
func GenerateParallel(peaks []Peak, cfg Config) []Fingerprint {
	if len(peaks) < 2 {
		return nil
	}

	sorted := make([]Peak, len(peaks))
	copy(sorted, peaks)
	SortPeaks(sorted)

	ranges := partition(len(sorted), cfg.Workers)
	if len(ranges) <= 1 {
		return Generate(peaks, cfg)
	}

	results := make([][]Fingerprint, len(ranges))
	var wg sync.WaitGroup
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, r chunkRange) {
			defer wg.Done()
			var fps []Fingerprint
			for a := r.start; a < r.end; a++ {
				fps = appendAnchorPairs(fps, sorted, a, cfg)
			}
			results[i] = fps
		}(i, r)
	}
	wg.Wait()

	var merged []Fingerprint
	for _, fps := range results {
		merged = append(merged, fps...)
	}
	return merged
}

func appendAnchorPairs(dst []Fingerprint, sorted []Peak, i int, cfg Config) []Fingerprint {
	anchor := sorted[i]
	for j := 1; j < cfg.FanValue && i+j < len(sorted); j++ {
		target := sorted[i+j]
		delta := target.Time - anchor.Time
		if delta < cfg.MinHashTimeDelta || delta > cfg.MaxHashTimeDelta {
			continue
		}
		dst = append(dst, Fingerprint{
			Hash:       hashPair(anchor.Freq, target.Freq, delta, cfg.HashLength),
			AnchorTime: anchor.Time,
		})
	}
	return dst
}

// hashPair digests (freq1, freq2, timeDelta) with SHA-1 and truncates the
// lowercase hex form to length characters. Truncation trades collision
// probability for index size.
func hashPair(freq1, freq2, delta, length int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d|%d|%d", freq1, freq2, delta)))
	h := hex.EncodeToString(sum[:])
	if length > 0 && length < len(h) {
		h = h[:length]
	}
	return h
}
