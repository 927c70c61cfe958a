package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fftrack/fftrack/pkg/fftrack"
	"github.com/fftrack/fftrack/pkg/logger"
	"github.com/fftrack/fftrack/pkg/utils"
)

// Global flags
var (
	dbPath     string
	tempDir    string
	configPath string
)

func init() {
	// .env is optional and never overrides real environment variables.
	_ = godotenv.Load()

	flag.StringVar(&dbPath, "db", getEnvOrDefault("FFTRACK_DB_PATH", "fftrack.sqlite3"), "Path to the SQLite database file")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("FFTRACK_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.StringVar(&configPath, "config", os.Getenv("FFTRACK_CONFIG"), "Path to a JSON config file (optional)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig() (*fftrack.Config, error) {
	if configPath != "" {
		return fftrack.LoadConfigFile(configPath)
	}
	return fftrack.DefaultConfig(), nil
}

func createService() (fftrack.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return fftrack.NewService(
		fftrack.WithDBPath(dbPath),
		fftrack.WithTempDir(tempDir),
		fftrack.WithFingerprintConfig(cfg.Fingerprint),
		fftrack.WithMatchConfig(cfg.Match),
	)
}

func main() {
	log := logger.GetLogger()

	printBanner()

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	log.Infof("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(args[1:])
	case "identify":
		handleIdentify(args[1:])
	case "list":
		handleList()
	case "delete":
		handleDelete(args[1:])
	case "config":
		handleConfig(args[1:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
   __  __ _                       _
  / _|/ _| |_ _ __ __ _  ___ ___| | __
 | |_| |_| __| '__/ _` + "`" + ` |/ __/ _ \ |/ /
 |  _|  _| |_| | | (_| | (_|  __/   <
 |_| |_|  \__|_|  \__,_|\___\___|_|\_\

        Audio Identification CLI
`
	fmt.Println(banner)
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	// Separate the audio file path from flags
	var audioPath string
	var flagArgs []string
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && audioPath == "" {
			audioPath = arg
		} else {
			flagArgs = append(flagArgs, args[i:]...)
			break
		}
	}

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := addCmd.String("title", "", "Song title (required unless using --youtube-url)")
	artist := addCmd.String("artist", "", "Artist name (required unless using --youtube-url)")
	album := addCmd.String("album", "", "Album name (optional)")
	youtubeURL := addCmd.String("youtube-url", "", "YouTube URL to download and add (alternative to audio file)")
	addCmd.Parse(flagArgs)

	if *youtubeURL != "" && audioPath != "" {
		fmt.Println("Error: cannot specify both audio file and --youtube-url")
		os.Exit(1)
	}
	if *youtubeURL == "" && audioPath == "" {
		fmt.Println("Error: audio file path or --youtube-url required")
		fmt.Println("Usage: fftrack add <audio_file> --title <title> --artist <artist> [--album <album>]")
		fmt.Println("   OR: fftrack add --youtube-url <url>")
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var songID string
	if *youtubeURL != "" {
		if !utils.IsYouTubeURL(*youtubeURL) {
			fmt.Printf("Error: not a valid YouTube URL: %s\n", *youtubeURL)
			os.Exit(1)
		}
		fmt.Println("Downloading audio from YouTube...")
		fmt.Println("   This may take a few moments depending on video length")

		songID, err = svc.AddSongFromYouTube(ctx, *youtubeURL)
	} else {
		if *title == "" || *artist == "" {
			fmt.Println("Error: --title and --artist are required")
			os.Exit(1)
		}
		fmt.Println("Processing audio file...")
		fmt.Println("   This may take a few moments for large files")

		songID, err = svc.AddSong(ctx, audioPath, fftrack.SongMetadata{
			Title:       *title,
			Artist:      *artist,
			Album:       *album,
			YouTubeLink: *youtubeURL,
		})
	}
	if err != nil {
		fmt.Printf("\nFailed to add song: %v\n", err)
		log.Errorf("AddSong failed: %v", err)
		os.Exit(1)
	}

	song, err := svc.GetSong(songID)
	if err != nil {
		fmt.Printf("\nAdded song %s\n", songID)
		return
	}

	fmt.Println("\nSuccessfully added song to database!")
	fmt.Printf("   ID:      %s\n", song.ID)
	fmt.Printf("   Title:   %s\n", song.Title)
	fmt.Printf("   Artist:  %s\n", song.Artist)
	if song.YouTubeLink != "" {
		fmt.Printf("   YouTube: %s\n", song.YouTubeLink)
	}
	log.Infof("Successfully added song ID=%s", songID)
}

func handleIdentify(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: fftrack identify <audio_file>")
		os.Exit(1)
	}

	audioPath := args[0]
	log.Infof("Identifying audio file: %s", audioPath)

	svc, err := createService()
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	fmt.Println("Analyzing audio file...")
	fmt.Println("   Generating fingerprints and searching database")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, best, err := svc.IdentifyFile(ctx, audioPath)
	if err != nil {
		fmt.Printf("\nFailed to identify song: %v\n", err)
		log.Errorf("IdentifyFile failed: %v", err)
		os.Exit(1)
	}

	if best == nil {
		fmt.Println("\nNo matches found in database")
		log.Infof("No matches found")
		return
	}

	fmt.Printf("\nBest match: \"%s\" by %s\n", best.Title, best.Artist)
	fmt.Printf("   Confidence: %.1f%% | Matches: %d | Offset: %.2fs\n\n",
		best.Confidence*100, best.Count, best.OffsetSeconds)

	fmt.Println("Top candidates:")
	for i, r := range results {
		fmt.Printf("%d. \"%s\" by %s\n", i+1, r.Title, r.Artist)
		fmt.Printf("   Confidence: %.1f%% | Matches: %d | Offset: %.2fs\n",
			r.Confidence*100, r.Count, r.OffsetSeconds)
	}
	log.Infof("Identification complete: %d candidates, best=%s", len(results), best.SongID)
}

func handleList() {
	log := logger.GetLogger()

	svc, err := createService()
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	songs, err := svc.ListSongs()
	if err != nil {
		fmt.Printf("Failed to list songs: %v\n", err)
		log.Errorf("ListSongs failed: %v", err)
		os.Exit(1)
	}

	if len(songs) == 0 {
		fmt.Println("\nNo songs in database")
		return
	}

	fmt.Printf("\nFound %d song(s):\n\n", len(songs))
	for i, song := range songs {
		fmt.Printf("%d. \"%s\" by %s (ID: %s)\n", i+1, song.Title, song.Artist, song.ID)
		if song.Album != "" {
			fmt.Printf("   Album: %s\n", song.Album)
		}
		if song.YouTubeLink != "" {
			fmt.Printf("   YouTube: %s\n", song.YouTubeLink)
		}
		fmt.Println()
	}
	log.Infof("Listed %d songs", len(songs))
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: fftrack delete <song_id>")
		os.Exit(1)
	}
	songID := args[0]

	svc, err := createService()
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	song, err := svc.GetSong(songID)
	if err != nil {
		fmt.Printf("Song not found (ID: %s)\n", songID)
		log.Warnf("Song %s not found: %v", songID, err)
		os.Exit(1)
	}

	if err := svc.DeleteSong(songID); err != nil {
		fmt.Printf("Failed to delete song: %v\n", err)
		log.Errorf("DeleteSong failed: %v", err)
		os.Exit(1)
	}

	fmt.Println("\nSuccessfully deleted song:")
	fmt.Printf("   ID:     %s\n", song.ID)
	fmt.Printf("   Title:  %s\n", song.Title)
	fmt.Printf("   Artist: %s\n", song.Artist)
	log.Infof("Deleted song ID=%s ('%s' by '%s')", song.ID, song.Title, song.Artist)
}

func handleConfig(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fftrack config <init|show> [path]")
		os.Exit(1)
	}

	path := "fftrack.json"
	if len(args) > 1 {
		path = args[1]
	} else if configPath != "" {
		path = configPath
	}

	switch args[0] {
	case "init":
		cfg := fftrack.DefaultConfig()
		if err := cfg.SaveConfigFile(path); err != nil {
			fmt.Printf("Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
	case "show":
		cfg, err := fftrack.LoadConfigFile(path)
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration (%s):\n", path)
		fmt.Printf("   DB path:       %s\n", cfg.DBPath)
		fmt.Printf("   Sample rate:   %d\n", cfg.Fingerprint.SampleRate)
		fmt.Printf("   Window size:   %d\n", cfg.Fingerprint.WindowSize)
		fmt.Printf("   Overlap:       %.2f\n", cfg.Fingerprint.OverlapRatio)
		fmt.Printf("   Fan value:     %d\n", cfg.Fingerprint.FanValue)
		fmt.Printf("   Top N:         %d\n", cfg.Match.TopN)
		fmt.Printf("   Conf. mode:    %d\n", cfg.Match.ConfidenceMode)
		fmt.Printf("   Conf. thresh.: %.2f\n", cfg.Match.ConfidenceThreshold)
	default:
		fmt.Printf("Unknown config subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("fftrack - Audio Identification CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        Path to SQLite database (env: FFTRACK_DB_PATH, default: fftrack.sqlite3)")
	fmt.Println("  --temp <dir>       Temporary directory for audio conversion (env: FFTRACK_TEMP_DIR)")
	fmt.Println("  --config <path>    JSON config file (env: FFTRACK_CONFIG)")
	fmt.Println("\nUsage:")
	fmt.Println("  fftrack [global-options] add <audio_file> --title <title> --artist <artist> [--album <album>]")
	fmt.Println("  fftrack [global-options] add --youtube-url <url>")
	fmt.Println("  fftrack [global-options] identify <audio_file>")
	fmt.Println("  fftrack [global-options] list")
	fmt.Println("  fftrack [global-options] delete <song_id>")
	fmt.Println("  fftrack [global-options] config <init|show> [path]")
	fmt.Println("\nExamples:")
	fmt.Println("  # Add from local file")
	fmt.Println("  fftrack --db mydb.sqlite3 add song.mp3 --title \"Song\" --artist \"Artist\"")
	fmt.Println()
	fmt.Println("  # Add from YouTube URL (auto-detects metadata)")
	fmt.Println("  fftrack add --youtube-url \"https://youtube.com/watch?v=dQw4w9WgXcQ\"")
	fmt.Println()
	fmt.Println("  # Identify a recorded clip")
	fmt.Println("  fftrack identify query.wav")
}
