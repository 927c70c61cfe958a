package fftrack

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fftrack/fftrack/pkg/fftrack/audio"
	"github.com/fftrack/fftrack/pkg/fftrack/fingerprint"
	"github.com/fftrack/fftrack/pkg/fftrack/match"
	"github.com/fftrack/fftrack/pkg/fftrack/storage"
	"github.com/fftrack/fftrack/pkg/logger"
	"github.com/fftrack/fftrack/pkg/utils"
)

type trackService struct {
	cfg     *Config
	store   Storage
	matcher *match.Matcher
	log     *logger.Logger
}

// NewService builds a Service from the defaults overridden by opts. When no
// storage is supplied, a SQLite store is opened at the configured DB path.
func NewService(opts ...Option) (Service, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Storage == nil {
		store, err := storage.NewDBClientWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		cfg.Storage = store
	}

	svc := &trackService{
		cfg:   cfg,
		store: cfg.Storage,
		log:   cfg.Logger,
	}
	svc.matcher = match.New(cfg.Match, svc.store.LookupByHash)
	return svc, nil
}

// FingerprintSamples runs the full pipeline: spectrogram, log power scaling,
// peak extraction, and combinatorial hashing. The input must be mono samples
// at the configured sample rate.
func (s *trackService) FingerprintSamples(samples []float64) ([]fingerprint.Fingerprint, error) {
	spec, err := fingerprint.Spectrogram(samples, s.cfg.Fingerprint)
	if err != nil {
		return nil, err
	}
	fingerprint.ToLogPower(spec)

	peaks := fingerprint.FindPeaksParallel(spec, s.cfg.Fingerprint)
	s.log.Debugf("extracted %d spectral peaks from %d samples", len(peaks), len(samples))

	fps := fingerprint.GenerateParallel(peaks, s.cfg.Fingerprint)
	s.log.Debugf("generated %d fingerprints", len(fps))
	return fps, nil
}

// fingerprintFile converts the file to mono WAV at the pipeline rate, reads
// and normalizes it, and fingerprints the samples.
func (s *trackService) fingerprintFile(ctx context.Context, audioPath string) ([]fingerprint.Fingerprint, error) {
	wavPath, err := audio.ConvertToMonoWAV(ctx, audioPath, s.cfg.TempDir, audio.ConvertWAVConfig{
		SampleRate: s.cfg.Fingerprint.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", audioPath, err)
	}
	defer func() {
		if err := utils.DeleteFile(wavPath); err != nil {
			s.log.Warnf("could not remove temp file %s: %v", wavPath, err)
		}
	}()

	samples, rate, err := audio.ReadWAV(wavPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", wavPath, err)
	}
	if rate != s.cfg.Fingerprint.SampleRate {
		return nil, fmt.Errorf("unexpected sample rate %d after conversion, want %d", rate, s.cfg.Fingerprint.SampleRate)
	}
	audio.Normalize(samples)

	return s.FingerprintSamples(samples)
}

func (s *trackService) AddSong(ctx context.Context, audioPath string, meta SongMetadata) (string, error) {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	}
	artist := strings.TrimSpace(meta.Artist)
	if artist == "" {
		artist = "Unknown Artist"
	}

	fps, err := s.fingerprintFile(ctx, audioPath)
	if err != nil {
		return "", err
	}
	if len(fps) == 0 {
		return "", fmt.Errorf("no fingerprints produced for %s", audioPath)
	}

	meta.Title, meta.Artist = title, artist
	return s.saveSong(meta, fps)
}

// saveSong registers the song row and stores its fingerprint set. When the
// insert fails, only a row created by this call is rolled back; a reused row
// and its previously stored fingerprints stay intact.
func (s *trackService) saveSong(meta SongMetadata, fps []fingerprint.Fingerprint) (string, error) {
	songID, created, err := s.store.RegisterSong(meta.Title, meta.Artist, meta.Album, meta.ReleaseDate, meta.YouTubeLink)
	if err != nil {
		return "", fmt.Errorf("registering song: %w", err)
	}

	if err := s.store.BulkInsertFingerprints(songID, fps); err != nil {
		if created {
			if delErr := s.store.DeleteSongByID(songID); delErr != nil {
				s.log.Errorf("rollback of song %s failed: %v", songID, delErr)
			}
		}
		return "", fmt.Errorf("storing fingerprints: %w", err)
	}

	s.log.Infof("added %q by %q (%d fingerprints)", meta.Title, meta.Artist, len(fps))
	return songID, nil
}

func (s *trackService) AddSongFromYouTube(ctx context.Context, url string) (string, error) {
	if !utils.IsYouTubeURL(url) {
		return "", fmt.Errorf("not a YouTube URL: %s", url)
	}

	audioPath, meta, err := audio.DownloadYouTubeAudio(ctx, url, s.cfg.TempDir)
	if err != nil {
		return "", fmt.Errorf("downloading audio: %w", err)
	}
	defer func() {
		if err := utils.DeleteFile(audioPath); err != nil {
			s.log.Warnf("could not remove downloaded file %s: %v", audioPath, err)
		}
	}()

	return s.AddSong(ctx, audioPath, SongMetadata{
		Title:       meta.Title,
		Artist:      meta.Artist,
		YouTubeLink: url,
	})
}

func (s *trackService) IdentifyFile(ctx context.Context, audioPath string) ([]MatchResult, *MatchResult, error) {
	fps, err := s.fingerprintFile(ctx, audioPath)
	if err != nil {
		return nil, nil, err
	}
	return s.MatchFingerprints(fps)
}

func (s *trackService) MatchFingerprints(fps []fingerprint.Fingerprint) ([]MatchResult, *MatchResult, error) {
	candidates, best, err := s.matcher.GetBestMatch(fps)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	results := make([]MatchResult, 0, len(candidates))
	var bestResult *MatchResult
	for _, c := range candidates {
		r := s.toResult(c)
		results = append(results, r)
		if best != nil && c.SongID == best.SongID && c.Offset == best.Offset && bestResult == nil {
			bestResult = &results[len(results)-1]
		}
	}
	return results, bestResult, nil
}

// toResult resolves song metadata for a candidate. A candidate whose song row
// has vanished keeps its ID so the caller still sees the hit.
func (s *trackService) toResult(c match.Candidate) MatchResult {
	r := MatchResult{
		SongID:        c.SongID,
		Offset:        c.Offset,
		OffsetSeconds: s.cfg.Fingerprint.OffsetToSeconds(c.Offset),
		Count:         c.Count,
		Confidence:    c.Confidence,
	}
	song, err := s.store.GetSongByID(c.SongID)
	if err != nil {
		if !errors.Is(err, storage.ErrSongNotFound) {
			s.log.Warnf("metadata lookup for song %s failed: %v", c.SongID, err)
		}
		return r
	}
	r.Title = song.Title
	r.Artist = song.Artist
	return r
}

func (s *trackService) GetSong(songID string) (*storage.Song, error) {
	return s.store.GetSongByID(songID)
}

func (s *trackService) ListSongs() ([]storage.Song, error) {
	return s.store.ListSongs()
}

func (s *trackService) DeleteSong(songID string) error {
	if err := s.store.DeleteSongByID(songID); err != nil {
		return err
	}
	s.log.Infof("deleted song %s", songID)
	return nil
}

func (s *trackService) Close() error {
	return s.store.Close()
}
