package assets

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"autocast-pipeline/retry"
	"autocast-pipeline/types"

	"golang.org/x/sync/errgroup"
)

// MakeStoryboards assembles the run's storyboard image list. A fixed target
// count is needed for full-length coverage: images already supplied with the
// topic count toward it, and only the shortfall is generated from the script
// outline. The result is always supplied-then-generated order.
func (p *Producer) MakeStoryboards(ctx context.Context, topic *types.Topic, outline []string, outDir string) ([]string, error) {
	target := p.cfg.Assets.StoryboardTarget
	supplied := SuppliedImages(topic)

	if len(supplied) >= target {
		log.Printf("[assets] Storyboard: %d supplied images satisfy target %d — skipping generation", len(supplied), target)
		return supplied, nil
	}

	shortfall := target - len(supplied)
	log.Printf("[assets] Storyboard: %d supplied, generating %d more...", len(supplied), shortfall)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	prompts := storyboardPrompts(topic, outline, shortfall)
	generated := p.generateBatched(ctx, prompts, outDir)

	return append(supplied, generated...), nil
}

// generateBatched renders prompts in small concurrent batches. Each item has
// its own reduced retry budget; failed items are omitted rather than failing
// the batch.
func (p *Producer) generateBatched(ctx context.Context, prompts []string, outDir string) []string {
	batchSize := p.cfg.Assets.StoryboardBatch
	results := make([]string, len(prompts))

	for start := 0; start < len(prompts); start += batchSize {
		end := start + batchSize
		if end > len(prompts) {
			end = len(prompts)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				outFile := filepath.Join(outDir, fmt.Sprintf("storyboard_%03d.jpg", i))
				ref, err := retry.Do(gctx, fmt.Sprintf("storyboard %d", i),
					retry.Options{Attempts: retry.PerItemAttempts},
					func(ctx context.Context) (string, error) {
						return p.genImage(ctx, prompts[i], i*31+3, outFile)
					})
				if err != nil {
					log.Printf("[assets] Warning: storyboard image %d failed: %v — omitting", i, err)
					return nil
				}
				results[i] = ref
				return nil
			})
		}
		_ = g.Wait()
	}

	var out []string
	for _, r := range results {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// storyboardPrompts builds one prompt per shortfall slot from the outline,
// cycling when the outline is shorter than the shortfall
func storyboardPrompts(topic *types.Topic, outline []string, count int) []string {
	prompts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		scene := topic.Headline
		if len(outline) > 0 {
			scene = outline[i%len(outline)]
		}
		prompts = append(prompts, fmt.Sprintf(
			"%s, cinematic, dramatic lighting, photorealistic, 16:9, no text, no watermark", scene))
	}
	return prompts
}

// SuppliedImages filters the topic's sources down to direct image URLs
func SuppliedImages(topic *types.Topic) []string {
	var out []string
	for _, u := range topic.Sources {
		if isImageURL(u) {
			out = append(out, u)
		}
	}
	return out
}

func isImageURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasSuffix(lower, ".jpg") ||
		strings.HasSuffix(lower, ".jpeg") ||
		strings.HasSuffix(lower, ".png") ||
		strings.HasSuffix(lower, ".webp")
}
