// Command spectro renders PNG spectrograms of WAV files, useful for eyeballing
// where the peak extractor should find energy.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/draw"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/eligwz/spectrogram"

	"github.com/fftrack/fftrack/pkg/fftrack/audio"
	"github.com/fftrack/fftrack/pkg/logger"
	"github.com/fftrack/fftrack/pkg/utils"
)

var (
	inputPath string
	outputDir string
	width     int
	height    int
)

func init() {
	flag.StringVar(&inputPath, "in", "", "WAV file or directory of WAV files")
	flag.StringVar(&outputDir, "out", "spectrograms", "Output directory for PNG files")
	flag.IntVar(&width, "width", 2048, "Image width in pixels")
	flag.IntVar(&height, "height", 512, "Image height (frequency bins)")
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	if inputPath == "" {
		fmt.Println("Usage: spectro --in <wav_file_or_dir> [--out <dir>] [--width N] [--height N]")
		os.Exit(1)
	}

	if err := utils.MakeDir(outputDir); err != nil {
		log.Fatalf("creating output directory: %v", err)
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		log.Fatalf("stat %s: %v", inputPath, err)
	}

	if !info.IsDir() {
		if err := render(inputPath); err != nil {
			log.Fatalf("rendering %s: %v", inputPath, err)
		}
		return
	}

	err = filepath.WalkDir(inputPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".wav" {
			return nil
		}
		if err := render(path); err != nil {
			log.Errorf("rendering %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("walking %s: %v", inputPath, err)
	}
}

func render(path string) error {
	log := logger.GetLogger()

	samples, sampleRate, err := audio.ReadWAV(path)
	if err != nil {
		return err
	}
	log.Infof("read %d samples at %d Hz from %s", len(samples), sampleRate, path)

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, linear magnitude. The log scale in this library
	// washes out the image, so keep it linear.
	spectrogram.Drawfft(
		img,
		samples,
		uint32(sampleRate),
		uint32(height),
		false, // RECTANGLE
		false, // DFT
		true,  // MAG
		false, // LOG10
	)

	outputPath := filepath.Join(outputDir, filepath.Base(path)+".png")
	if err := spectrogram.SavePng(img, outputPath); err != nil {
		return fmt.Errorf("saving %s: %w", outputPath, err)
	}
	log.Infof("saved spectrogram to %s", outputPath)
	return nil
}
