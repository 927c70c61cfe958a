package fftrack

import (
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fftrack/fftrack/pkg/fftrack/audio"
	"github.com/fftrack/fftrack/pkg/fftrack/fingerprint"
	"github.com/fftrack/fftrack/pkg/fftrack/match"
	"github.com/fftrack/fftrack/pkg/fftrack/storage"
)

// memStore is an in-memory Storage used to exercise the service without
// touching SQLite or external tools.
type memStore struct {
	songs map[string]*storage.Song
	index map[string][]match.Entry
	count map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		songs: make(map[string]*storage.Song),
		index: make(map[string][]match.Entry),
		count: make(map[string]int),
	}
}

func (m *memStore) RegisterSong(title, artist, album string, releaseDate *time.Time, youtubeLink string) (string, bool, error) {
	for id, s := range m.songs {
		if s.Title == title && s.Artist == artist {
			return id, false, nil
		}
	}
	id := uuid.NewString()
	m.songs[id] = &storage.Song{
		ID: id, Title: title, Artist: artist, Album: album,
		ReleaseDate: releaseDate, YouTubeLink: youtubeLink,
	}
	return id, true, nil
}

func (m *memStore) BulkInsertFingerprints(songID string, fps []fingerprint.Fingerprint) error {
	for _, fp := range fps {
		m.index[fp.Hash] = append(m.index[fp.Hash], match.Entry{SongID: songID, Offset: fp.AnchorTime})
		m.count[songID]++
	}
	return nil
}

func (m *memStore) LookupByHash(hash string) ([]match.Entry, error) {
	return m.index[hash], nil
}

func (m *memStore) GetSongByID(songID string) (*storage.Song, error) {
	song, ok := m.songs[songID]
	if !ok {
		return nil, storage.ErrSongNotFound
	}
	return song, nil
}

func (m *memStore) ListSongs() ([]storage.Song, error) {
	out := make([]storage.Song, 0, len(m.songs))
	for _, s := range m.songs {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memStore) DeleteSongByID(songID string) error {
	delete(m.songs, songID)
	for hash, entries := range m.index {
		kept := entries[:0]
		for _, e := range entries {
			if e.SongID != songID {
				kept = append(kept, e)
			}
		}
		m.index[hash] = kept
	}
	delete(m.count, songID)
	return nil
}

func (m *memStore) GetFingerprintCount(songID string) (int, error) {
	return m.count[songID], nil
}

func (m *memStore) Close() error { return nil }

func testService(t *testing.T, store Storage) Service {
	t.Helper()

	fpCfg := fingerprint.DefaultConfig()
	fpCfg.SampleRate = 8192
	fpCfg.WindowSize = 1024
	fpCfg.PeakNeighborhood = 5

	svc, err := NewService(
		WithStorage(store),
		WithFingerprintConfig(fpCfg),
	)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

// sine generates seconds of a pure tone at the given rate.
func sine(freq float64, rate int, seconds float64) []float64 {
	n := int(float64(rate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
	}
	return samples
}

func TestFingerprintSamples(t *testing.T) {
	svc := testService(t, newMemStore())

	fps, err := svc.FingerprintSamples(sine(440, 8192, 3))
	if err != nil {
		t.Fatalf("FingerprintSamples failed: %v", err)
	}
	if len(fps) == 0 {
		t.Fatal("expected fingerprints from a steady tone")
	}

	_, err = svc.FingerprintSamples(make([]float64, 10))
	var insufficient *fingerprint.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Errorf("expected InsufficientDataError for short input, got %v", err)
	}
}

func TestIdentifyRoundTrip(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store)

	reference := sine(440, 8192, 3)
	fps, err := svc.FingerprintSamples(reference)
	if err != nil {
		t.Fatalf("fingerprinting reference failed: %v", err)
	}

	songID, _, err := store.RegisterSong("Tone", "Oscillator", "", nil, "")
	if err != nil {
		t.Fatalf("RegisterSong failed: %v", err)
	}
	if err := store.BulkInsertFingerprints(songID, fps); err != nil {
		t.Fatalf("BulkInsertFingerprints failed: %v", err)
	}

	// Identical query: the mode of the offset differences must be zero.
	results, best, err := svc.MatchFingerprints(fps)
	if err != nil {
		t.Fatalf("MatchFingerprints failed: %v", err)
	}
	if best == nil {
		t.Fatal("expected a best match for an identical query")
	}
	if best.SongID != songID {
		t.Errorf("best match %s, want %s", best.SongID, songID)
	}
	if best.Offset != 0 {
		t.Errorf("best offset %d, want 0", best.Offset)
	}
	if best.Confidence <= 0 {
		t.Errorf("confidence %f, want positive", best.Confidence)
	}
	if best.Title != "Tone" || best.Artist != "Oscillator" {
		t.Errorf("metadata not resolved: %+v", best)
	}
	if best.OffsetSeconds != 0 {
		t.Errorf("offset seconds %f, want 0", best.OffsetSeconds)
	}
	if len(results) == 0 {
		t.Error("expected ranked candidates alongside the best match")
	}
}

func TestIdentifyCroppedClipRecoversOffset(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store)

	// Four one-second tones in distinct bins, so every stretch of the
	// signal yields its own peak pairs and alignment is unambiguous.
	rate := 8192
	var samples []float64
	for _, freq := range []float64{440, 640, 840, 1040} {
		samples = append(samples, sine(freq, rate, 1)...)
	}

	fps, err := svc.FingerprintSamples(samples)
	if err != nil {
		t.Fatalf("fingerprinting reference failed: %v", err)
	}
	songID, _, err := store.RegisterSong("Sequence", "Oscillator", "", nil, "")
	if err != nil {
		t.Fatalf("RegisterSong failed: %v", err)
	}
	if err := store.BulkInsertFingerprints(songID, fps); err != nil {
		t.Fatalf("BulkInsertFingerprints failed: %v", err)
	}

	// Query the last two seconds. The crop starts at 2 s, which is
	// 32 hops of 512 samples, so the winning offset must land there.
	query := audio.Crop(samples, rate, 2, 4)
	qfps, err := svc.FingerprintSamples(query)
	if err != nil {
		t.Fatalf("fingerprinting query failed: %v", err)
	}

	_, best, err := svc.MatchFingerprints(qfps)
	if err != nil {
		t.Fatalf("MatchFingerprints failed: %v", err)
	}
	if best == nil {
		t.Fatal("expected a best match for a cropped sub-clip")
	}
	if best.SongID != songID {
		t.Errorf("best match %s, want %s", best.SongID, songID)
	}
	if best.Offset < 31 || best.Offset > 33 {
		t.Errorf("recovered offset %d frames, want 32 within one frame", best.Offset)
	}
	if best.OffsetSeconds < 1.9 || best.OffsetSeconds > 2.1 {
		t.Errorf("recovered offset %.3f s, want about 2.0", best.OffsetSeconds)
	}
}

func TestMatchFingerprintsUnknownClip(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store)

	reference, err := svc.FingerprintSamples(sine(440, 8192, 3))
	if err != nil {
		t.Fatalf("fingerprinting reference failed: %v", err)
	}
	songID, _, _ := store.RegisterSong("Tone", "Oscillator", "", nil, "")
	if err := store.BulkInsertFingerprints(songID, reference); err != nil {
		t.Fatalf("BulkInsertFingerprints failed: %v", err)
	}

	// A tone in a different bin shares no peak pairs with the reference.
	query, err := svc.FingerprintSamples(sine(1000, 8192, 3))
	if err != nil {
		t.Fatalf("fingerprinting query failed: %v", err)
	}

	results, best, err := svc.MatchFingerprints(query)
	if err != nil {
		t.Fatalf("MatchFingerprints failed: %v", err)
	}
	if best != nil || results != nil {
		t.Errorf("unknown clip should not match, got %v, %v", results, best)
	}
}

// failingStore fails every fingerprint insert; everything else delegates.
type failingStore struct {
	*memStore
}

func (f *failingStore) BulkInsertFingerprints(songID string, fps []fingerprint.Fingerprint) error {
	return errors.New("disk full")
}

func TestSaveSongRollbackPreservesExistingSong(t *testing.T) {
	store := newMemStore()

	// A song already ingested with its full fingerprint set.
	existing := []fingerprint.Fingerprint{
		{Hash: "aa11", AnchorTime: 0},
		{Hash: "bb22", AnchorTime: 4},
	}
	songID, _, err := store.RegisterSong("Tone", "Oscillator", "", nil, "")
	if err != nil {
		t.Fatalf("RegisterSong failed: %v", err)
	}
	if err := store.BulkInsertFingerprints(songID, existing); err != nil {
		t.Fatalf("BulkInsertFingerprints failed: %v", err)
	}

	svc := testService(t, &failingStore{memStore: store})
	ts := svc.(*trackService)

	// Re-adding the same (title, artist) fails at the insert; the
	// pre-existing row and its fingerprints must survive untouched.
	if _, err := ts.saveSong(SongMetadata{Title: "Tone", Artist: "Oscillator"}, existing); err == nil {
		t.Fatal("expected the failing insert to surface an error")
	}
	if _, err := store.GetSongByID(songID); err != nil {
		t.Errorf("pre-existing song was deleted on rollback: %v", err)
	}
	count, err := store.GetFingerprintCount(songID)
	if err != nil {
		t.Fatalf("GetFingerprintCount failed: %v", err)
	}
	if count != len(existing) {
		t.Errorf("pre-existing fingerprints lost on rollback: %d of %d remain", count, len(existing))
	}

	// A row created by the failing call itself is rolled back.
	if _, err := ts.saveSong(SongMetadata{Title: "Other", Artist: "Band"}, existing); err == nil {
		t.Fatal("expected the failing insert to surface an error")
	}
	songs, err := store.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}
	for _, s := range songs {
		if s.Title == "Other" {
			t.Error("newly created song row survived a failed ingestion")
		}
	}
}

func TestMatchFingerprintsEmpty(t *testing.T) {
	svc := testService(t, newMemStore())

	results, best, err := svc.MatchFingerprints(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil || best != nil {
		t.Errorf("empty query should be an explicit no-match, got %v, %v", results, best)
	}
}

func TestServiceSongManagement(t *testing.T) {
	store := newMemStore()
	svc := testService(t, store)

	id, _, err := store.RegisterSong("Song", "Artist", "", nil, "")
	if err != nil {
		t.Fatalf("RegisterSong failed: %v", err)
	}

	song, err := svc.GetSong(id)
	if err != nil {
		t.Fatalf("GetSong failed: %v", err)
	}
	if song.Title != "Song" {
		t.Errorf("title %q, want Song", song.Title)
	}

	songs, err := svc.ListSongs()
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}
	if len(songs) != 1 {
		t.Errorf("expected 1 song, got %d", len(songs))
	}

	if err := svc.DeleteSong(id); err != nil {
		t.Fatalf("DeleteSong failed: %v", err)
	}
	if _, err := svc.GetSong(id); err == nil {
		t.Error("expected error after deletion")
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/fftrack.json"

	cfg := DefaultConfig()
	cfg.DBPath = "custom.sqlite3"
	cfg.Fingerprint.WindowSize = 2048
	cfg.Match.TopN = 3
	if err := cfg.SaveConfigFile(path); err != nil {
		t.Fatalf("SaveConfigFile failed: %v", err)
	}

	loaded, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if loaded.DBPath != "custom.sqlite3" {
		t.Errorf("db path %q", loaded.DBPath)
	}
	if loaded.Fingerprint.WindowSize != 2048 {
		t.Errorf("window size %d", loaded.Fingerprint.WindowSize)
	}
	if loaded.Match.TopN != 3 {
		t.Errorf("top N %d", loaded.Match.TopN)
	}
	// Fields absent from the file keep their defaults.
	if loaded.Fingerprint.SampleRate != 44100 {
		t.Errorf("sample rate %d, want default 44100", loaded.Fingerprint.SampleRate)
	}

	if _, err := LoadConfigFile(dir + "/missing.json"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadConfigFileRejectsInvalid(t *testing.T) {
	path := t.TempDir() + "/bad.json"
	cfg := DefaultConfig()
	cfg.Fingerprint.WindowSize = -5
	if err := cfg.SaveConfigFile(path); err != nil {
		t.Fatalf("SaveConfigFile failed: %v", err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("expected validation error for negative window size")
	}
}
