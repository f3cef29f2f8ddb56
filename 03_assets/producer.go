// Package assets produces the media for one run: thumbnail variants,
// the narration voiceover, storyboard images and the short intro clip.
// Each producer fills exactly one AssetBundle field.
package assets

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"autocast-pipeline/config"
	"autocast-pipeline/types"
)

// imageGenFunc renders one image for a prompt; swappable in tests
type imageGenFunc func(ctx context.Context, prompt string, seed int, outFile string) (string, error)

// Producer holds the asset generation dependencies for a run
type Producer struct {
	cfg      *config.Config
	genImage imageGenFunc
	voice    *voiceClient
	intro    *introClient
}

// New creates a Producer backed by the real generation services
func New(cfg *config.Config) *Producer {
	poll := newPollinationsClient()
	return &Producer{
		cfg:      cfg,
		genImage: poll.Generate,
		voice:    newVoiceClient(cfg),
		intro:    newIntroClient(cfg),
	}
}

// MakeThumbnails generates the configured number of thumbnail variants for
// the topic. The caller selects the first variant as the active thumbnail.
func (p *Producer) MakeThumbnails(ctx context.Context, topic *types.Topic, title, thumbnailText, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	prompt := thumbnailPrompt(topic, title, thumbnailText)
	var variants []string
	for i := 0; i < p.cfg.Assets.ThumbnailVariants; i++ {
		outFile := filepath.Join(outDir, fmt.Sprintf("thumbnail_%02d.jpg", i))
		ref, err := p.genImage(ctx, prompt, i*42+7, outFile)
		if err != nil {
			return nil, fmt.Errorf("thumbnail variant %d: %w", i, err)
		}
		variants = append(variants, ref)
		log.Printf("[assets] ✅ Thumbnail variant %d/%d saved", i+1, p.cfg.Assets.ThumbnailVariants)
	}
	return variants, nil
}

func thumbnailPrompt(topic *types.Topic, title, thumbnailText string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("YouTube thumbnail for a video titled %q. ", title))
	sb.WriteString(fmt.Sprintf("Subject: %s. ", topic.Headline))
	if thumbnailText != "" {
		sb.WriteString(fmt.Sprintf("Leave clear space for large overlay text reading %q. ", thumbnailText))
	}
	sb.WriteString("High contrast, dramatic lighting, eye-catching, 16:9, no watermark, no text")
	return sb.String()
}
