package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/cwygoda/catchbot/internal/domain"
)

// Fixed media settings; none of them are user configurable.
const (
	formatSelector   = "bestaudio/best"
	audioFormat      = "mp3"
	audioQuality     = "320K"
	fixupPolicy      = "detect_or_warn"
	outputTemplate   = "%(title)s.%(ext)s"
	progressInterval = 500 * time.Millisecond
)

// Pipeline downloads a link with yt-dlp and extracts its audio as mp3.
type Pipeline struct {
	outputDir string
}

// New creates a pipeline writing into outputDir.
func New(outputDir string) *Pipeline {
	return &Pipeline{outputDir: outputDir}
}

// OutputDir returns the directory converted files are written to.
func (p *Pipeline) OutputDir() string {
	return p.outputDir
}

// Install downloads a yt-dlp binary if none is available.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

func (p *Pipeline) command() *ytdlp.Command {
	return ytdlp.New().
		Format(formatSelector).
		ExtractAudio().
		AudioFormat(audioFormat).
		AudioQuality(audioQuality).
		Output(filepath.Join(p.outputDir, outputTemplate)).
		NoOverwrites().
		NoPlaylist().
		NoKeepVideo().
		Fixup(fixupPolicy)
}

// Download runs yt-dlp for link and blocks until it exits. It returns the
// path of the converted file when yt-dlp reported one.
func (p *Pipeline) Download(ctx context.Context, link domain.Link, progress domain.ProgressFunc) (string, error) {
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	var (
		mu         sync.Mutex
		downloaded string
	)
	dl := p.command().ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		ev := toEvent(update)
		if ev.Status == domain.ProgressFinished && ev.Filename != "" {
			mu.Lock()
			downloaded = ev.Filename
			mu.Unlock()
		}
		if progress != nil {
			progress(ev)
		}
	})

	if _, err := dl.Run(ctx, link.String()); err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return audioPath(downloaded), nil
}

func toEvent(update ytdlp.ProgressUpdate) domain.ProgressEvent {
	return domain.ProgressEvent{
		Status:   string(update.Status),
		Filename: update.Filename,
		Bytes:    int64(update.TotalBytes),
	}
}

// audioPath maps the downloaded media file to the file left behind by audio
// extraction.
func audioPath(downloaded string) string {
	if downloaded == "" {
		return ""
	}
	return strings.TrimSuffix(downloaded, filepath.Ext(downloaded)) + "." + audioFormat
}
