package match

import "fmt"

// ConfidenceMode selects how a candidate's confidence is computed. The modes
// are mutually exclusive and change which songs survive to ranking, so the
// choice is part of the configuration, not a presentation detail.
type ConfidenceMode int

const (
	// ConfidenceByOffsets scores a song by the fraction of its own hash hits
	// that agree on the winning offset.
	ConfidenceByOffsets ConfidenceMode = iota
	// ConfidenceByTotalMatches scores a song by its share of the winning-offset
	// evidence across all candidate songs.
	ConfidenceByTotalMatches
	// ConfidenceByScore scores a song by raw hash hits plus the winning-offset
	// count, and drops candidates at or below ConfidenceThreshold.
	ConfidenceByScore
)

// RankBy selects the ordering used for the top-N cut.
type RankBy int

const (
	RankByCount RankBy = iota
	RankByConfidence
	RankByComposite
)

// Config holds the match engine tunables.
type Config struct {
	TopN                 int            `json:"top_n"`                 // ranked candidates returned, at most
	ConfidenceMode       ConfidenceMode `json:"confidence_mode"`       // one of the three confidence formulas
	ConfidenceThreshold  float64        `json:"confidence_threshold"`  // absolute cutoff, ConfidenceByScore only
	MatchCountBenchmark  int            `json:"match_count_benchmark"` // histogram modes below this are noise, not candidates
	ConfidenceDifference float64        `json:"confidence_difference"` // composite ranking confidence margin
	CountDifference      int            `json:"count_difference"`      // composite ranking count margin
	RankBy               RankBy         `json:"rank_by"`
}

// DefaultConfig returns the stock matching parameters.
func DefaultConfig() Config {
	return Config{
		TopN:                5,
		ConfidenceMode:      ConfidenceByOffsets,
		ConfidenceThreshold: 0.5,
	}
}

// Validate rejects invalid settings before any lookup happens.
func (c Config) Validate() error {
	if c.TopN < 1 {
		return fmt.Errorf("top N must be at least 1, got %d", c.TopN)
	}
	if c.ConfidenceMode < ConfidenceByOffsets || c.ConfidenceMode > ConfidenceByScore {
		return fmt.Errorf("unknown confidence mode %d", c.ConfidenceMode)
	}
	if c.RankBy < RankByCount || c.RankBy > RankByComposite {
		return fmt.Errorf("unknown rank selector %d", c.RankBy)
	}
	if c.MatchCountBenchmark < 0 {
		return fmt.Errorf("match count benchmark must be non-negative, got %d", c.MatchCountBenchmark)
	}
	if c.ConfidenceDifference < 0 {
		return fmt.Errorf("confidence difference must be non-negative, got %g", c.ConfidenceDifference)
	}
	if c.CountDifference < 0 {
		return fmt.Errorf("count difference must be non-negative, got %d", c.CountDifference)
	}
	return nil
}
