package compose

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	// decoders for storyboard and thumbnail refs
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/sync/errgroup"
)

// Per-step load timeouts
const (
	audioFetchTimeout  = 15 * time.Second
	audioBufferTimeout = 10 * time.Second
	audioDecodeTimeout = 20 * time.Second
	clipLoadTimeout    = 10 * time.Second
	imageLoadTimeout   = 5 * time.Second
)

// loadedAssets is everything the frame loop needs, fully resolved up front
type loadedAssets struct {
	audioPath string
	duration  float64 // decoded seconds, the authoritative run length
	clipPath  string  // empty when the intro clip is absent or failed to load
	thumbnail image.Image
	boards    []image.Image // zero-dimension placeholders are skipped at draw
}

type loader struct {
	httpClient *http.Client
}

func newLoader() *loader {
	return &loader{httpClient: &http.Client{}}
}

// loadAudio resolves the narration resource and decodes its duration.
// Failures here are fatal for the render.
func (l *loader) loadAudio(ctx context.Context, ref, outDir string) (string, float64, error) {
	path, err := l.fetchToFile(ctx, ref, filepath.Join(outDir, "narration_src"+ext(ref, ".wav")),
		audioFetchTimeout, audioBufferTimeout)
	if err != nil {
		return "", 0, fmt.Errorf("fetch audio: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, audioDecodeTimeout)
	defer cancel()
	dur, err := probeDuration(dctx, path)
	if err != nil {
		return "", 0, fmt.Errorf("decode audio: %w", err)
	}
	if dur <= 0 {
		return "", 0, fmt.Errorf("decoded audio has zero duration")
	}
	return path, dur, nil
}

// loadClip resolves the optional intro clip. Any failure is silently
// dropped: the still-image fallback takes over.
func (l *loader) loadClip(ctx context.Context, ref, outDir string) string {
	if ref == "" {
		return ""
	}
	path, err := l.fetchToFile(ctx, ref, filepath.Join(outDir, "intro_src"+ext(ref, ".mp4")),
		clipLoadTimeout, clipLoadTimeout)
	if err != nil {
		log.Printf("[compose] Intro clip load failed: %v — using still fallback", err)
		return ""
	}
	pctx, cancel := context.WithTimeout(ctx, clipLoadTimeout)
	defer cancel()
	if _, err := probeDuration(pctx, path); err != nil {
		log.Printf("[compose] Intro clip probe failed: %v — using still fallback", err)
		return ""
	}
	return path
}

// loadStill resolves the optional thumbnail still; failure degrades to no
// fallback still without aborting
func (l *loader) loadStill(ctx context.Context, ref string) image.Image {
	if ref == "" {
		return nil
	}
	img, err := l.fetchImage(ctx, ref)
	if err != nil {
		log.Printf("[compose] Thumbnail still load failed: %v", err)
		return nil
	}
	return img
}

// loadBoards resolves all storyboard images concurrently. Individual
// failures become zero-dimension placeholders rather than aborting.
func (l *loader) loadBoards(ctx context.Context, refs []string) []image.Image {
	boards := make([]image.Image, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			img, err := l.fetchImage(gctx, ref)
			if err != nil {
				log.Printf("[compose] Storyboard image %d load failed: %v — using placeholder", i, err)
				boards[i] = image.NewRGBA(image.Rect(0, 0, 0, 0))
				return nil
			}
			boards[i] = img
			return nil
		})
	}
	_ = g.Wait()
	return boards
}

// fetchImage retrieves and decodes one image ref within its load timeout
func (l *loader) fetchImage(ctx context.Context, ref string) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, imageLoadTimeout)
	defer cancel()

	r, err := l.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return img, nil
}

// fetchToFile resolves a ref to a local file. Local paths are used in
// place; remote refs are downloaded with separate fetch and buffer budgets.
func (l *loader) fetchToFile(ctx context.Context, ref, outFile string, fetchTimeout, bufferTimeout time.Duration) (string, error) {
	if !isRemote(ref) {
		if _, err := os.Stat(ref); err != nil {
			return "", err
		}
		return ref, nil
	}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, "GET", ref, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, ref)
	}

	f, err := os.Create(outFile)
	if err != nil {
		return "", err
	}
	defer f.Close()

	done := make(chan error, 1)
	go func() {
		_, cerr := io.Copy(f, resp.Body)
		done <- cerr
	}()
	select {
	case err := <-done:
		if err != nil {
			return "", err
		}
	case <-time.After(bufferTimeout):
		return "", fmt.Errorf("buffering %s timed out", ref)
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return outFile, nil
}

func (l *loader) open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !isRemote(ref) {
		return os.Open(ref)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, ref)
	}
	return resp.Body, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func ext(ref, fallback string) string {
	if e := filepath.Ext(ref); e != "" && len(e) <= 5 {
		return e
	}
	return fallback
}

// probeDuration uses ffprobe to decode a media file's duration in seconds
func probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	var dur float64
	_, err = fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur)
	return dur, err
}
