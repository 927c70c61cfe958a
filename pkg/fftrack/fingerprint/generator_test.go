package fingerprint

import (
	"sort"
	"testing"
)

func sortFingerprints(fps []Fingerprint) {
	sort.Slice(fps, func(i, j int) bool {
		if fps[i].Hash == fps[j].Hash {
			return fps[i].AnchorTime < fps[j].AnchorTime
		}
		return fps[i].Hash < fps[j].Hash
	})
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := testConfig()
	peaks := []Peak{
		{Freq: 10, Time: 0},
		{Freq: 20, Time: 5},
		{Freq: 30, Time: 12},
		{Freq: 15, Time: 12},
		{Freq: 40, Time: 30},
	}

	first := Generate(peaks, cfg)
	second := Generate(peaks, cfg)

	if len(first) == 0 {
		t.Fatal("expected fingerprints from 5 peaks")
	}
	if len(first) != len(second) {
		t.Fatalf("runs produced %d and %d fingerprints", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("fingerprint %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestGenerateTooFewPeaks(t *testing.T) {
	cfg := testConfig()

	if got := Generate(nil, cfg); got != nil {
		t.Errorf("expected nil for no peaks, got %v", got)
	}
	if got := Generate([]Peak{{Freq: 1, Time: 1}}, cfg); got != nil {
		t.Errorf("expected nil for a single peak, got %v", got)
	}
}

func TestGenerateDeltaBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MinHashTimeDelta = 0
	cfg.MaxHashTimeDelta = 200

	// The second peak is too far ahead in time to pair with the first.
	peaks := []Peak{
		{Freq: 10, Time: 0},
		{Freq: 20, Time: 500},
	}
	if got := Generate(peaks, cfg); len(got) != 0 {
		t.Errorf("expected no fingerprints beyond MaxHashTimeDelta, got %v", got)
	}

	cfg.MinHashTimeDelta = 5
	peaks = []Peak{
		{Freq: 10, Time: 0},
		{Freq: 20, Time: 3},
	}
	if got := Generate(peaks, cfg); len(got) != 0 {
		t.Errorf("expected no fingerprints below MinHashTimeDelta, got %v", got)
	}
}

func TestGenerateFanValue(t *testing.T) {
	cfg := testConfig()
	cfg.FanValue = 3
	cfg.MaxHashTimeDelta = 1000

	// 5 peaks, each pairing with at most 2 subsequent ones:
	// 2 + 2 + 2 + 1 + 0 = 7 fingerprints.
	peaks := []Peak{
		{Freq: 1, Time: 0},
		{Freq: 2, Time: 1},
		{Freq: 3, Time: 2},
		{Freq: 4, Time: 3},
		{Freq: 5, Time: 4},
	}
	got := Generate(peaks, cfg)
	if len(got) != 7 {
		t.Errorf("expected 7 fingerprints with fan value 3, got %d", len(got))
	}
}

func TestGenerateHashFormat(t *testing.T) {
	cfg := testConfig()
	peaks := []Peak{
		{Freq: 10, Time: 0},
		{Freq: 20, Time: 5},
	}

	fps := Generate(peaks, cfg)
	if len(fps) != 1 {
		t.Fatalf("expected 1 fingerprint, got %d", len(fps))
	}

	fp := fps[0]
	if len(fp.Hash) != cfg.HashLength {
		t.Errorf("hash length %d, want %d", len(fp.Hash), cfg.HashLength)
	}
	for _, c := range fp.Hash {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Errorf("hash %q contains non-hex character %q", fp.Hash, c)
		}
	}
	if fp.AnchorTime != 0 {
		t.Errorf("anchor time %d, want the first peak's time 0", fp.AnchorTime)
	}

	// Same pair, same hash.
	again := Generate(peaks, cfg)
	if again[0].Hash != fp.Hash {
		t.Errorf("hash is not stable: %q vs %q", fp.Hash, again[0].Hash)
	}
}

func TestGenerateParallelMatchesSerial(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 4
	cfg.MaxHashTimeDelta = 1000

	var peaks []Peak
	for i := 0; i < 100; i++ {
		peaks = append(peaks, Peak{Freq: (i * 7) % 50, Time: i})
	}

	serial := Generate(peaks, cfg)
	parallel := GenerateParallel(peaks, cfg)

	if len(serial) != len(parallel) {
		t.Fatalf("serial produced %d fingerprints, parallel %d", len(serial), len(parallel))
	}

	sortFingerprints(serial)
	sortFingerprints(parallel)
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Errorf("fingerprint %d differs: %+v vs %+v", i, serial[i], parallel[i])
		}
	}
}
