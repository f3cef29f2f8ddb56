package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/types"
)

// introClient drives a long-running video generation job: submit, poll
// until the operation completes, download the clip
type introClient struct {
	cfg        *config.Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

func newIntroClient(cfg *config.Config) *introClient {
	return &introClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sleep:      sleepCtx,
	}
}

// MakeIntro generates the short intro clip for the run's hook. Failure here
// is recoverable for the pipeline: the compositor falls back to the
// thumbnail still.
func (p *Producer) MakeIntro(ctx context.Context, topic *types.Topic, hook, outDir string) (string, error) {
	return p.intro.makeIntro(ctx, topic, hook, outDir)
}

func (c *introClient) makeIntro(ctx context.Context, topic *types.Topic, hook, outDir string) (string, error) {
	endpoint := os.Getenv("VIDEO_API_URL")
	if endpoint == "" {
		return "", fmt.Errorf("VIDEO_API_URL not set")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}

	jobID, err := c.submit(ctx, endpoint, topic, hook)
	if err != nil {
		return "", err
	}
	log.Printf("[assets] Intro video job submitted: %s", jobID)

	videoURL, err := c.poll(ctx, endpoint, jobID)
	if err != nil {
		return "", err
	}

	outFile := filepath.Join(outDir, "intro.mp4")
	if err := c.download(ctx, videoURL, outFile); err != nil {
		return "", fmt.Errorf("download intro clip: %w", err)
	}

	log.Printf("[assets] ✅ Intro clip ready: %s", outFile)
	return outFile, nil
}

func (c *introClient) submit(ctx context.Context, endpoint string, topic *types.Topic, hook string) (string, error) {
	prompt := fmt.Sprintf("Short cinematic intro shot for a video about %q. Opening line: %q. 6 seconds, dramatic, 16:9.",
		topic.Headline, hook)

	reqBody, _ := json.Marshal(map[string]string{"prompt": prompt})
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint+"/jobs", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv("VIDEO_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit intro job: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		JobID string `json:"job_id"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse job response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("intro job rejected: %s", out.Error)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("intro job response missing job_id")
	}
	return out.JobID, nil
}

func (c *introClient) poll(ctx context.Context, endpoint, jobID string) (string, error) {
	interval := time.Duration(c.cfg.Assets.IntroPollSeconds) * time.Second

	for attempt := 0; attempt < c.cfg.Assets.IntroPollAttempts; attempt++ {
		if err := c.sleep(ctx, interval); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/jobs/%s", endpoint, jobID), nil)
		if err != nil {
			return "", err
		}
		if key := os.Getenv("VIDEO_API_KEY"); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("poll intro job: %w", err)
		}

		var out struct {
			Status   string `json:"status"`
			VideoURL string `json:"video_url"`
			Error    string `json:"error"`
		}
		derr := json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if derr != nil {
			return "", fmt.Errorf("parse poll response: %w", derr)
		}

		switch out.Status {
		case "done":
			return out.VideoURL, nil
		case "failed":
			return "", fmt.Errorf("intro job failed: %s", out.Error)
		}
		log.Printf("[assets] Intro job %s still %s (%d/%d)", jobID, out.Status, attempt+1, c.cfg.Assets.IntroPollAttempts)
	}
	return "", fmt.Errorf("intro job %s did not complete in time", jobID)
}

func (c *introClient) download(ctx context.Context, url, outFile string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d downloading clip", resp.StatusCode)
	}

	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
