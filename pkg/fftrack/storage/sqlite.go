package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fftrack/fftrack/pkg/fftrack/fingerprint"
	"github.com/fftrack/fftrack/pkg/fftrack/match"
)

const DefaultDBFile = "fftrack.sqlite3"

// ErrSongNotFound is returned when a song ID has no row.
var ErrSongNotFound = errors.New("song not found")

// Song is a reference recording. Metadata is owned here; the match engine
// only ever sees song IDs.
type Song struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	Title       string     `gorm:"uniqueIndex:idx_song_unique,priority:1" json:"title"`
	Artist      string     `gorm:"uniqueIndex:idx_song_unique,priority:2" json:"artist"`
	Album       string     `json:"album,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	YouTubeLink string     `json:"youtube_link,omitempty"`
	CreatedAt   time.Time
}

// Fingerprint is one stored hash occurrence. (SongID, Hash, AnchorTime) is
// unique: the same hash may legitimately recur in a song at different anchor
// times, and across songs freely.
type Fingerprint struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Hash       string `gorm:"type:varchar(40);index:idx_hash;uniqueIndex:idx_fp_unique,priority:2" json:"hash"`
	SongID     string `gorm:"type:varchar(36);index:idx_song;uniqueIndex:idx_fp_unique,priority:1" json:"song_id"`
	AnchorTime int    `gorm:"uniqueIndex:idx_fp_unique,priority:3" json:"anchor_time"`
}

// DBClient wraps the gorm handle over the SQLite reference store.
type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// NewDBClient opens the database at FFTRACK_DB_PATH, falling back to
// DefaultDBFile in the working directory.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("FFTRACK_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

// NewDBClientWithPath opens (creating if needed) the SQLite database at
// dbPath and migrates the schema.
func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Song{}, &Fingerprint{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RegisterSong creates a song row and returns its store-assigned ID. An
// existing (title, artist) pair is reused rather than duplicated; the created
// flag tells the caller whether the row is new, so error-path cleanup never
// deletes a song that predates the call.
func (c *DBClient) RegisterSong(title, artist, album string, releaseDate *time.Time, youtubeLink string) (string, bool, error) {
	var song Song

	err := c.DB.Where("title = ? AND artist = ?", title, artist).First(&song).Error
	if err == nil {
		return song.ID, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, fmt.Errorf("querying existing song: %w", err)
	}

	song = Song{
		ID:          uuid.NewString(),
		Title:       title,
		Artist:      artist,
		Album:       album,
		ReleaseDate: releaseDate,
		YouTubeLink: youtubeLink,
	}
	if err := c.DB.Create(&song).Error; err != nil {
		return "", false, fmt.Errorf("creating song: %w", err)
	}
	return song.ID, true, nil
}

// BulkInsertFingerprints stores a song's whole fingerprint set inside one
// transaction. Either every row lands or none do, so a failure mid-ingestion
// can never leave a song with partial fingerprints.
func (c *DBClient) BulkInsertFingerprints(songID string, fps []fingerprint.Fingerprint) error {
	if len(fps) == 0 {
		return nil
	}

	rows := make([]Fingerprint, 0, len(fps))
	for _, fp := range fps {
		rows = append(rows, Fingerprint{
			Hash:       fp.Hash,
			SongID:     songID,
			AnchorTime: fp.AnchorTime,
		})
	}

	return c.DB.Transaction(func(tx *gorm.DB) error {
		// ON CONFLICT DO NOTHING absorbs duplicate (song, hash, anchor) rows
		// produced by repeated peak pairs.
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
		return nil
	})
}

// LookupByHash returns every (song, anchor time) entry stored under hash.
// A failing query is reported as match.ErrStoreUnavailable: the store is a
// single SQLite file, so a lookup error (closed pool, missing file, disk
// fault) affects every hash, and the match request must abort rather than
// degrade into a false no-match.
func (c *DBClient) LookupByHash(hash string) ([]match.Entry, error) {
	var rows []Fingerprint
	if err := c.DB.Where("hash = ?", hash).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying fingerprints for hash %s: %w: %w", hash, match.ErrStoreUnavailable, err)
	}
	entries := make([]match.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, match.Entry{SongID: r.SongID, Offset: r.AnchorTime})
	}
	return entries, nil
}

// GetSongByID fetches a song's metadata.
func (c *DBClient) GetSongByID(songID string) (*Song, error) {
	var song Song
	if err := c.DB.Where("id = ?", songID).First(&song).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSongNotFound
		}
		return nil, fmt.Errorf("querying song %s: %w", songID, err)
	}
	return &song, nil
}

// ListSongs returns all songs ordered by insertion time.
func (c *DBClient) ListSongs() ([]Song, error) {
	var songs []Song
	if err := c.DB.Order("created_at").Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}
	return songs, nil
}

// DeleteSongByID removes a song and all of its fingerprints in one
// transaction.
func (c *DBClient) DeleteSongByID(songID string) error {
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", songID).Delete(&Song{}).Error
	})
}

// GetFingerprintCount reports how many fingerprints a song has stored.
func (c *DBClient) GetFingerprintCount(songID string) (int, error) {
	var count int64
	if err := c.DB.Model(&Fingerprint{}).Where("song_id = ?", songID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting fingerprints for song %s: %w", songID, err)
	}
	return int(count), nil
}
