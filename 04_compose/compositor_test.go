package compose

import (
	"context"
	"image"
	"image/color"
	"testing"

	"autocast-pipeline/config"
	"autocast-pipeline/types"

	"github.com/stretchr/testify/require"
)

func TestRender_RejectsSnapshotWithoutAudio(t *testing.T) {
	c := New(&config.Config{})

	run := types.Run{Script: &types.Script{Title: "t"}}
	_, err := c.Render(context.Background(), run, t.TempDir())
	require.ErrorIs(t, err, ErrNoAudio)
}

func TestRender_RejectsSnapshotWithoutScript(t *testing.T) {
	c := New(&config.Config{})

	run := types.Run{}
	run.Assets.AudioURL = "out/voice.wav"
	_, err := c.Render(context.Background(), run, t.TempDir())
	require.ErrorIs(t, err, ErrNoScript)
}

func TestCoverCrop(t *testing.T) {
	// wider than 16:9 crops the sides, keeping full height
	got := coverCrop(image.Rect(0, 0, 200, 100), Width, Height)
	require.Equal(t, 100, got.Dy())
	require.Equal(t, 177, got.Dx())
	require.Equal(t, 11, got.Min.X)

	// taller than 16:9 crops top and bottom, keeping full width
	got = coverCrop(image.Rect(0, 0, 100, 200), Width, Height)
	require.Equal(t, 100, got.Dx())
	require.Equal(t, 56, got.Dy())
	require.Equal(t, 72, got.Min.Y)
}

func TestDrawCoverSkipsZeroDimPlaceholder(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	dst.Set(10, 10, color.White)

	drawCover(dst, image.NewRGBA(image.Rect(0, 0, 0, 0)))

	r, g, b, _ := dst.At(10, 10).RGBA()
	require.NotZero(t, r+g+b, "placeholder draw must leave the canvas untouched")
}
