package assets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"autocast-pipeline/config"
	"autocast-pipeline/types"

	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Assets.StoryboardTarget = 20
	cfg.Assets.StoryboardBatch = 2
	cfg.Assets.ThumbnailVariants = 3
	return cfg
}

// countingGen records every generation request, thread-safe because batches
// run concurrently
type countingGen struct {
	mu    sync.Mutex
	calls int
	fail  func(outFile string) bool
}

func (g *countingGen) generate(ctx context.Context, prompt string, seed int, outFile string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.fail != nil && g.fail(outFile) {
		return "", errors.New("generation rejected")
	}
	return outFile, nil
}

func (g *countingGen) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func imageSources(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://img.example.com/supplied_%02d.jpg", i)
	}
	return out
}

func TestMakeStoryboards_SuppliedMeetsTargetSkipsGeneration(t *testing.T) {
	gen := &countingGen{}
	p := &Producer{cfg: testConfig(), genImage: gen.generate}

	topic := &types.Topic{Headline: "deep sea vents", Sources: imageSources(20)}
	got, err := p.MakeStoryboards(context.Background(), topic, nil, t.TempDir())

	require.NoError(t, err)
	require.Len(t, got, 20)
	require.Zero(t, gen.count())
}

func TestMakeStoryboards_GeneratesExactlyTheShortfall(t *testing.T) {
	gen := &countingGen{}
	p := &Producer{cfg: testConfig(), genImage: gen.generate}

	topic := &types.Topic{Headline: "deep sea vents", Sources: imageSources(15)}
	got, err := p.MakeStoryboards(context.Background(), topic, []string{"scene one", "scene two"}, t.TempDir())

	require.NoError(t, err)
	require.Equal(t, 5, gen.count())
	require.Len(t, got, 20)

	// supplied images come first, generated after, in order
	for i := 0; i < 15; i++ {
		require.Equal(t, fmt.Sprintf("https://img.example.com/supplied_%02d.jpg", i), got[i])
	}
	require.Contains(t, got[15], "storyboard_000.jpg")
	require.Contains(t, got[19], "storyboard_004.jpg")
}

func TestMakeStoryboards_FailedItemsAreOmitted(t *testing.T) {
	gen := &countingGen{
		fail: func(outFile string) bool {
			return filepath.Base(outFile) == "storyboard_002.jpg"
		},
	}
	p := &Producer{cfg: testConfig(), genImage: gen.generate}

	topic := &types.Topic{Headline: "deep sea vents", Sources: imageSources(16)}
	got, err := p.MakeStoryboards(context.Background(), topic, nil, t.TempDir())

	require.NoError(t, err)
	require.Len(t, got, 19)
	for _, ref := range got {
		require.NotContains(t, ref, "storyboard_002")
	}
}

func TestSuppliedImages_FiltersNonImageSources(t *testing.T) {
	topic := &types.Topic{Sources: []string{
		"https://example.com/article",
		"https://img.example.com/a.JPG",
		"https://img.example.com/b.png",
		"https://img.example.com/c.webp",
		"https://example.com/video.mp4",
	}}
	got := SuppliedImages(topic)
	require.Len(t, got, 3)
}

func TestMakeThumbnails_GeneratesConfiguredVariants(t *testing.T) {
	gen := &countingGen{}
	p := &Producer{cfg: testConfig(), genImage: gen.generate}

	topic := &types.Topic{Headline: "deep sea vents"}
	got, err := p.MakeThumbnails(context.Background(), topic, "The Ocean's Hidden Engine", "HIDDEN ENGINE", t.TempDir())

	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 3, gen.count())
}
