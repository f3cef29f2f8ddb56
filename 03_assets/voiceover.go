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
	"os/exec"
	"path/filepath"
	"time"

	"autocast-pipeline/config"
)

// voiceClient synthesizes narration audio from a TTS HTTP endpoint that
// returns raw mono s16le PCM samples
type voiceClient struct {
	cfg        *config.Config
	httpClient *http.Client
}

func newVoiceClient(cfg *config.Config) *voiceClient {
	return &voiceClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}
}

// Synthesize produces the run's single narration track and returns the path
// of a decodable WAV container
func (p *Producer) Synthesize(ctx context.Context, fullText, voiceID, outDir string) (string, error) {
	return p.voice.synthesize(ctx, fullText, voiceID, outDir)
}

func (v *voiceClient) synthesize(ctx context.Context, fullText, voiceID, outDir string) (string, error) {
	log.Printf("[assets] Synthesizing voiceover (%d chars, voice %s)...", len(fullText), voiceID)

	endpoint := os.Getenv("TTS_API_URL")
	if endpoint == "" {
		return "", fmt.Errorf("TTS_API_URL not set")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}

	reqBody, _ := json.Marshal(map[string]interface{}{
		"text":        fullText,
		"voice":       voiceID,
		"sample_rate": v.cfg.Assets.TTSSampleRate,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv("TTS_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tts HTTP %d: %s", resp.StatusCode, string(body))
	}

	samples, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read tts samples: %w", err)
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("tts returned no samples")
	}

	rawFile := filepath.Join(outDir, "narration.pcm")
	if err := os.WriteFile(rawFile, samples, 0644); err != nil {
		return "", err
	}

	// Wrap the raw samples into a decodable WAV container
	wavFile := filepath.Join(outDir, "narration.wav")
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", v.cfg.Assets.TTSSampleRate),
		"-ac", "1",
		"-i", rawFile,
		wavFile,
	)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg pcm→wav: %w", err)
	}

	log.Printf("[assets] ✅ Voiceover ready: %s", wavFile)
	return wavFile, nil
}
