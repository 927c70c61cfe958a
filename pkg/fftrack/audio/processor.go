package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fftrack/fftrack/pkg/utils"
)

type ConvertWAVConfig struct {
	SampleRate int // target rate, e.g. 11025, 22050, 44100
}

// ConvertToMonoWAV converts any audio file ffmpeg understands to mono
// 16-bit PCM WAV at the configured sample rate, writing the result under
// outputDir with the source filename.
func ConvertToMonoWAV(ctx context.Context, inputPath, outputDir string, cfg ConvertWAVConfig) (string, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	baseName := filepath.Base(inputPath)
	ext := filepath.Ext(baseName)
	outputPath := filepath.Join(outputDir, strings.TrimSuffix(baseName, ext)+".wav")

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

// YTMetadata is the slice of yt-dlp's JSON dump we care about.
type YTMetadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Track    string  `json:"track"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

func pickArtist(meta YTMetadata) string {
	if strings.TrimSpace(meta.Artist) != "" {
		return meta.Artist
	}
	if strings.TrimSpace(meta.Channel) != "" {
		return meta.Channel
	}
	if strings.TrimSpace(meta.Uploader) != "" {
		return meta.Uploader
	}
	return "Unknown Artist"
}

// DownloadYouTubeAudio fetches a video's audio track with yt-dlp and returns
// the downloaded file path plus metadata (title, artist best-effort from the
// track/channel/uploader fields).
func DownloadYouTubeAudio(ctx context.Context, youtubeURL, outputDir string) (string, *YTMetadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Minute)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	metaCmd := exec.CommandContext(ctx, "yt-dlp",
		"-J",
		"--no-warnings",
		"--no-playlist",
		youtubeURL,
	)
	var stdout, stderr bytes.Buffer
	metaCmd.Stdout = &stdout
	metaCmd.Stderr = &stderr
	if err := metaCmd.Run(); err != nil {
		return "", nil, fmt.Errorf("yt-dlp metadata failed: %v (%s)", err, stderr.String())
	}

	var meta YTMetadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return "", nil, fmt.Errorf("parsing yt-dlp JSON: %w", err)
	}
	if strings.TrimSpace(meta.ID) == "" {
		return "", nil, fmt.Errorf("missing video ID in yt-dlp output")
	}
	if strings.TrimSpace(meta.Track) != "" {
		meta.Title = meta.Track
	}
	meta.Artist = pickArtist(meta)

	audioPath := filepath.Join(outputDir, meta.ID+".wav")
	dlCmd := exec.CommandContext(ctx, "yt-dlp",
		"--no-warnings",
		"--no-playlist",
		"-x",
		"--audio-format", "wav",
		"-o", filepath.Join(outputDir, meta.ID+".%(ext)s"),
		youtubeURL,
	)
	if out, err := dlCmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, fmt.Errorf("yt-dlp download failed: %v (%s)", err, out)
	}

	if _, err := os.Stat(audioPath); err != nil {
		return "", nil, fmt.Errorf("yt-dlp produced no audio file: %w", err)
	}

	return audioPath, &meta, nil
}
