package fftrack

import (
	"context"
	"time"

	"github.com/fftrack/fftrack/pkg/fftrack/fingerprint"
	"github.com/fftrack/fftrack/pkg/fftrack/match"
	"github.com/fftrack/fftrack/pkg/fftrack/storage"
)

// Storage is what the service needs from the reference store. *storage.DBClient
// satisfies it; tests substitute an in-memory implementation.
type Storage interface {
	RegisterSong(title, artist, album string, releaseDate *time.Time, youtubeLink string) (id string, created bool, err error)
	BulkInsertFingerprints(songID string, fps []fingerprint.Fingerprint) error
	LookupByHash(hash string) ([]match.Entry, error)
	GetSongByID(songID string) (*storage.Song, error)
	ListSongs() ([]storage.Song, error)
	DeleteSongByID(songID string) error
	GetFingerprintCount(songID string) (int, error)
	Close() error
}

// Service is the top-level fingerprinting and identification API.
type Service interface {
	// AddSong fingerprints an audio file and registers it under meta.
	AddSong(ctx context.Context, audioPath string, meta SongMetadata) (string, error)

	// AddSongFromYouTube downloads a video's audio track, derives metadata
	// from the video, and registers it.
	AddSongFromYouTube(ctx context.Context, url string) (string, error)

	// IdentifyFile fingerprints an audio file and matches it against the
	// store. It returns the ranked candidates and the best match, or a nil
	// best match when nothing qualifies.
	IdentifyFile(ctx context.Context, audioPath string) ([]MatchResult, *MatchResult, error)

	// MatchFingerprints matches an already-computed fingerprint set.
	MatchFingerprints(fps []fingerprint.Fingerprint) ([]MatchResult, *MatchResult, error)

	// FingerprintSamples runs the fingerprinting pipeline over raw mono
	// samples at the configured sample rate.
	FingerprintSamples(samples []float64) ([]fingerprint.Fingerprint, error)

	GetSong(songID string) (*storage.Song, error)
	ListSongs() ([]storage.Song, error)
	DeleteSong(songID string) error
	Close() error
}
