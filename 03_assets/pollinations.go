package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// pollinationsClient generates AI images via Pollinations.ai (free, no key)
type pollinationsClient struct {
	httpClient *http.Client
}

func newPollinationsClient() *pollinationsClient {
	return &pollinationsClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Generate renders one image for a prompt and saves it to outFile.
// The seed keeps regenerated runs reproducible.
func (p *pollinationsClient) Generate(ctx context.Context, prompt string, seed int, outFile string) (string, error) {
	encodedPrompt := url.PathEscape(prompt)
	imageURL := fmt.Sprintf(
		"https://image.pollinations.ai/prompt/%s?width=1280&height=720&nologo=true&model=flux&seed=%d",
		encodedPrompt, seed,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AutoCastPipeline/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d from Pollinations", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	// Tiny responses are error pages, not images
	if len(data) < 100 {
		return "", fmt.Errorf("response too small (%d bytes) — likely an error", len(data))
	}

	if err := os.WriteFile(outFile, data, 0644); err != nil {
		return "", err
	}
	return outFile, nil
}
