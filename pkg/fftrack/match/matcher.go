package match

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fftrack/fftrack/pkg/fftrack/fingerprint"
	"github.com/fftrack/fftrack/pkg/logger"
)

// ErrStoreUnavailable marks a reference-store-wide outage. A lookup error
// wrapping it aborts the whole match request; any other lookup error is
// logged and treated as zero matches for that single hash.
var ErrStoreUnavailable = errors.New("reference store unavailable")

// Entry is one reference index hit: a song and the anchor time at which the
// shared hash occurs in that song.
type Entry struct {
	SongID string
	Offset int
}

// LookupFunc fetches every reference entry stored under a hash.
type LookupFunc func(hash string) ([]Entry, error)

// CandidatePair is a surviving (song, offset difference) vote from one hash
// collision between the query and the reference index.
type CandidatePair struct {
	SongID     string
	OffsetDiff int
}

// Candidate is a song's aggregated match evidence: the dominant offset
// difference, how many votes agree on it, and a confidence score. Candidates
// are built fresh per query and never persisted.
type Candidate struct {
	SongID     string
	Offset     int
	Count      int
	Confidence float64
}

// Matcher turns query fingerprints into a ranked list of candidate songs.
type Matcher struct {
	cfg    Config
	lookup LookupFunc
	log    *logger.Logger
}

// New builds a Matcher over the given reference lookup.
func New(cfg Config, lookup LookupFunc) *Matcher {
	return &Matcher{cfg: cfg, lookup: lookup, log: logger.GetLogger()}
}

// GetBestMatch runs the full matching pipeline: lookup, offset alignment,
// ranking, top-N cut. Zero query hashes or zero reference hits yield
// (nil, nil, nil): an explicit no-match, not an error.
func (m *Matcher) GetBestMatch(query []fingerprint.Fingerprint) ([]Candidate, *Candidate, error) {
	if len(query) == 0 {
		return nil, nil, nil
	}

	pairs, rawHits, err := m.FindMatches(query)
	if err != nil {
		return nil, nil, err
	}

	candidates := m.AlignMatches(pairs, rawHits)
	if len(candidates) == 0 {
		m.log.Infof("no matches found for %d query hashes", len(query))
		return nil, nil, nil
	}

	top := m.TopN(candidates)
	best := top[0]
	return top, &best, nil
}

// FindMatches looks up every query hash in the reference index and collects
// per-song offset-difference votes. The raw hit counter per song counts every
// reference entry sharing a hash, before any offset filtering; it feeds the
// ConfidenceByScore mode. Votes with a negative offset difference are
// discarded: the query anchor must not precede the reference alignment. That
// policy loses matches when the query carries lead-in the reference lacks; it
// is kept for compatibility as a known precision/recall tradeoff.
func (m *Matcher) FindMatches(query []fingerprint.Fingerprint) ([]CandidatePair, map[string]int, error) {
	rawHits := make(map[string]int)
	var pairs []CandidatePair

	for _, fp := range query {
		entries, err := m.lookup(fp.Hash)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return nil, nil, fmt.Errorf("looking up hash %s: %w", fp.Hash, err)
			}
			m.log.Warnf("lookup failed for hash %s, counting zero matches: %v", fp.Hash, err)
			continue
		}
		for _, e := range entries {
			rawHits[e.SongID]++
			diff := e.Offset - fp.AnchorTime
			if diff < 0 {
				continue
			}
			pairs = append(pairs, CandidatePair{SongID: e.SongID, OffsetDiff: diff})
		}
	}

	return pairs, rawHits, nil
}

// AlignMatches groups offset differences by song, takes each song's modal
// offset as the claimed alignment, and scores it with the configured
// confidence formula. True matches spike at one offset; false collisions
// scatter, so the mode count separates them. When several offsets share the
// maximal count the smallest offset wins, a deterministic tie-break. Songs
// whose mode count falls below MatchCountBenchmark are treated as noise and
// excluded outright.
func (m *Matcher) AlignMatches(pairs []CandidatePair, rawHits map[string]int) []Candidate {
	offsetsBySong := make(map[string][]int)
	for _, p := range pairs {
		offsetsBySong[p.SongID] = append(offsetsBySong[p.SongID], p.OffsetDiff)
	}

	candidates := make([]Candidate, 0, len(offsetsBySong))
	for sid, offsets := range offsetsBySong {
		hist := make(map[int]int, len(offsets))
		for _, off := range offsets {
			hist[off]++
		}

		bestOffset, bestCount := 0, 0
		for off, cnt := range hist {
			if cnt > bestCount || (cnt == bestCount && off < bestOffset) {
				bestOffset, bestCount = off, cnt
			}
		}

		if bestCount < m.cfg.MatchCountBenchmark {
			continue
		}

		candidates = append(candidates, Candidate{
			SongID:     sid,
			Offset:     bestOffset,
			Count:      bestCount,
			Confidence: float64(bestCount) / float64(len(offsets)),
		})
	}

	switch m.cfg.ConfidenceMode {
	case ConfidenceByTotalMatches:
		var sum int
		for _, c := range candidates {
			sum += c.Count
		}
		if sum > 0 {
			for i := range candidates {
				candidates[i].Confidence = float64(candidates[i].Count) / float64(sum)
			}
		}
	case ConfidenceByScore:
		kept := candidates[:0]
		for _, c := range candidates {
			c.Confidence = float64(rawHits[c.SongID] + c.Count)
			if c.Confidence > m.cfg.ConfidenceThreshold {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	return candidates
}

// TopN ranks candidates with the configured comparator and truncates to the
// configured size. Candidates are first put into a canonical total order so
// repeated calls on identical input always break ties the same way, whatever
// order the histogram maps were iterated in.
func (m *Matcher) TopN(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	sort.Slice(ranked, func(i, j int) bool { return canonicalLess(ranked[i], ranked[j]) })

	less := m.rankLess()
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })

	n := m.cfg.TopN
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// BestMatch returns the top-ranked candidate, or false when the ranked list
// is empty.
func (m *Matcher) BestMatch(ranked []Candidate) (Candidate, bool) {
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

func (m *Matcher) rankLess() func(a, b Candidate) bool {
	switch m.cfg.RankBy {
	case RankByConfidence:
		return func(a, b Candidate) bool {
			if a.Confidence != b.Confidence {
				return a.Confidence > b.Confidence
			}
			return false // canonical pre-sort settles ties
		}
	case RankByComposite:
		return m.compositeLess
	default:
		return func(a, b Candidate) bool {
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return false
		}
	}
}

// compositeLess ranks a above b only when a's confidence beats b's by more
// than the ConfidenceDifference margin, or, with confidences inside the
// margin, when a's raw count beats b's by more than the CountDifference
// margin. Pairs inside both margins keep their canonical order.
func (m *Matcher) compositeLess(a, b Candidate) bool {
	if b.Confidence-a.Confidence > m.cfg.ConfidenceDifference {
		return false
	}
	if a.Confidence-b.Confidence > m.cfg.ConfidenceDifference {
		return true
	}
	if b.Count-a.Count > m.cfg.CountDifference {
		return false
	}
	if a.Count-b.Count > m.cfg.CountDifference {
		return true
	}
	return false
}

// canonicalLess is a total order over candidates: stronger count first, then
// higher confidence, then smaller offset, then song ID.
func canonicalLess(a, b Candidate) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.SongID < b.SongID
}
