// Package compose turns a finished asset bundle and script into one
// continuous recorded video: a fixed-size canvas redrawn frame by frame
// against a single wall-clock source, multiplexed with the narration track.
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/types"

	xdraw "golang.org/x/image/draw"
)

var (
	// ErrNoAudio rejects a render before any resource loading begins
	ErrNoAudio = errors.New("compose: snapshot has no audio track")
	// ErrNoScript rejects a render on a snapshot without a script
	ErrNoScript = errors.New("compose: snapshot has no script")
)

// Compositor produces the finished media blob for a run snapshot
type Compositor struct {
	cfg    *config.Config
	loader *loader

	// now is the single clock source for the frame loop; swappable in tests
	now func() time.Time
}

// New creates a Compositor
func New(cfg *config.Config) *Compositor {
	return &Compositor{
		cfg:    cfg,
		loader: newLoader(),
		now:    time.Now,
	}
}

// Render runs the full timeline render and capture on a read-only snapshot
// and returns the path of the finished mp4. It never persists or uploads
// anything beyond its output file.
func (c *Compositor) Render(ctx context.Context, run types.Run, outDir string) (string, error) {
	if run.Assets.AudioURL == "" {
		return "", ErrNoAudio
	}
	if run.Script == nil {
		return "", ErrNoScript
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}

	// Step 1: the decoded audio duration is the authoritative run length
	audioPath, duration, err := c.loader.loadAudio(ctx, run.Assets.AudioURL, outDir)
	if err != nil {
		return "", err
	}
	log.Printf("[compose] Audio decoded: %.1fs — rendering timeline", duration)

	assets := loadedAssets{
		audioPath: audioPath,
		duration:  duration,
		clipPath:  c.loader.loadClip(ctx, run.Assets.VideoURL, outDir),
		thumbnail: c.loader.loadStill(ctx, run.Assets.ThumbnailURL),
		boards:    c.loader.loadBoards(ctx, run.Assets.StoryboardURLs),
	}

	outFile := filepath.Join(outDir, "final_video.mp4")
	if err := c.record(ctx, assets, outFile); err != nil {
		return "", err
	}

	log.Printf("[compose] ✅ Finished blob: %s", outFile)
	return outFile, nil
}

// record drives the real-time frame loop: raw RGBA frames are piped into an
// ffmpeg muxer alongside the narration track, and elapsed time is
// recomputed from the clock on every frame so dropped frames cannot
// desynchronize the schedule.
func (c *Compositor) record(ctx context.Context, assets loadedAssets, outFile string) error {
	fps := c.cfg.Compose.FPS

	mux := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", Width, Height),
		"-r", fmt.Sprintf("%d", fps),
		"-i", "-",
		"-i", assets.audioPath,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		outFile,
	)
	frames, err := mux.StdinPipe()
	if err != nil {
		return err
	}
	mux.Stderr = os.Stderr
	if err := mux.Start(); err != nil {
		return fmt.Errorf("start ffmpeg mux: %w", err)
	}

	clip := newClipReader(ctx, assets.clipPath, fps)
	defer clip.close()

	slot := SlotSeconds(assets.duration, len(assets.boards))
	canvas := image.NewRGBA(image.Rect(0, 0, Width, Height))
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := c.now()
	for {
		select {
		case <-ctx.Done():
			frames.Close()
			_ = mux.Wait()
			return ctx.Err()
		case <-ticker.C:
		}

		// Elapsed always comes from the clock, never a frame counter
		elapsed := c.now().Sub(start).Seconds()
		if elapsed > assets.duration+GraceSeconds {
			break
		}

		c.drawFrame(canvas, elapsed, clip, assets, slot)
		if _, err := frames.Write(canvas.Pix); err != nil {
			frames.Close()
			_ = mux.Wait()
			return fmt.Errorf("write frame: %w", err)
		}
	}

	if err := frames.Close(); err != nil {
		return err
	}
	if err := mux.Wait(); err != nil {
		return fmt.Errorf("ffmpeg mux: %w", err)
	}
	return nil
}

// drawFrame clears the canvas to black and draws the visual selection for
// this point on the timeline
func (c *Compositor) drawFrame(canvas *image.RGBA, elapsed float64, clip *clipReader, assets loadedAssets, slot float64) {
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	kind, idx := VisualAt(elapsed, clip.playing(), assets.thumbnail != nil, len(assets.boards), slot)
	switch kind {
	case VisualIntroClip:
		if frame := clip.frame(); frame != nil {
			draw.Draw(canvas, canvas.Bounds(), frame, image.Point{}, draw.Src)
		} else if assets.thumbnail != nil {
			// clip ended early, still fallback covers the rest of the phase
			drawCover(canvas, assets.thumbnail)
		}
	case VisualThumbnail:
		drawCover(canvas, assets.thumbnail)
	case VisualStoryboard:
		drawCover(canvas, assets.boards[idx])
	}
}

// drawCover draws src cover-fit: centered, scaled to fill the canvas,
// cropping whatever overflows. Zero-dimension placeholders are skipped.
func drawCover(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, coverCrop(sb, Width, Height), xdraw.Src, nil)
}

// coverCrop returns the centered source rectangle whose aspect ratio
// matches the destination
func coverCrop(sb image.Rectangle, dstW, dstH int) image.Rectangle {
	dstAR := float64(dstW) / float64(dstH)
	srcAR := float64(sb.Dx()) / float64(sb.Dy())
	if srcAR > dstAR {
		w := int(float64(sb.Dy()) * dstAR)
		x0 := sb.Min.X + (sb.Dx()-w)/2
		return image.Rect(x0, sb.Min.Y, x0+w, sb.Max.Y)
	}
	h := int(float64(sb.Dx()) / dstAR)
	y0 := sb.Min.Y + (sb.Dy()-h)/2
	return image.Rect(sb.Min.X, y0, sb.Max.X, y0+h)
}
