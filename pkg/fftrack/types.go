package fftrack

import "time"

// SongMetadata describes a track being registered.
type SongMetadata struct {
	Title       string
	Artist      string
	Album       string
	ReleaseDate *time.Time
	YouTubeLink string
}

// MatchResult is a ranked identification candidate with resolved metadata.
type MatchResult struct {
	SongID        string
	Title         string
	Artist        string
	Offset        int
	OffsetSeconds float64
	Count         int
	Confidence    float64
}
