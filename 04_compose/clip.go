package compose

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"os/exec"
)

// clipReader streams the intro clip as raw RGBA frames, cover-fit to the
// canvas, decoded by ffmpeg at the render frame rate. Playback is muted:
// the narration track is the only audio.
type clipReader struct {
	cmd   *exec.Cmd
	out   io.ReadCloser
	buf   []byte
	ended bool
}

func newClipReader(ctx context.Context, path string, fps int) *clipReader {
	if path == "" {
		return &clipReader{ended: true}
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", Width, Height, Width, Height),
		"-r", fmt.Sprintf("%d", fps),
		"-an",
		"-",
	)
	out, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("[compose] Intro clip decode pipe failed: %v", err)
		return &clipReader{ended: true}
	}
	if err := cmd.Start(); err != nil {
		log.Printf("[compose] Intro clip decoder failed to start: %v", err)
		return &clipReader{ended: true}
	}

	return &clipReader{
		cmd: cmd,
		out: out,
		buf: make([]byte, Width*Height*4),
	}
}

// playing reports whether the clip still has frames left
func (c *clipReader) playing() bool { return !c.ended }

// frame returns the next decoded clip frame, or nil once the clip ends
func (c *clipReader) frame() *image.RGBA {
	if c.ended {
		return nil
	}
	if _, err := io.ReadFull(c.out, c.buf); err != nil {
		c.ended = true
		c.close()
		return nil
	}
	return &image.RGBA{Pix: c.buf, Stride: Width * 4, Rect: image.Rect(0, 0, Width, Height)}
}

func (c *clipReader) close() {
	if c.out != nil {
		c.out.Close()
		c.out = nil
	}
	if c.cmd != nil {
		_ = c.cmd.Wait()
		c.cmd = nil
	}
}
