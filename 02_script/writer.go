package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/types"
)

const systemPrompt = `You are a professional YouTube scriptwriter for a faceless channel. You write gripping, information-dense narration scripts.

Your scripts MUST follow this structure:
1. HOOK (first 15 seconds) - the single most surprising fact, no context.
2. BUILD - escalating detail, real names, real numbers, real places.
3. PAYOFF - the answer or twist the hook promised.
4. OUTRO - one open question to the viewer to drive comments.

You MUST respond with ONLY valid JSON — no preamble, no markdown, no explanation.

The JSON must have exactly these fields:
- "title": string (max 70 chars, click-worthy but honest)
- "thumbnail_text": string (3-5 punchy words for the thumbnail overlay)
- "description": string (~200 words, SEO-rich, includes a subscribe CTA)
- "tags": array of 20 strings
- "hook": string (the opening lines, spoken verbatim)
- "outline": array of strings (one visual scene description per ~20 seconds of narration, in order)
- "full_script": string (the complete narration text, spoken verbatim)

Keep total narration to 5-10 minutes when read aloud at natural pace (~130 words per minute).`

// Writer generates scripts using the Groq API
type Writer struct {
	cfg        *config.Config
	httpClient *http.Client
}

// New creates a new script Writer
func New(cfg *config.Config) *Writer {
	return &Writer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// scriptJSON is the raw JSON structure returned by Groq
type scriptJSON struct {
	Title         string   `json:"title"`
	ThumbnailText string   `json:"thumbnail_text"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Hook          string   `json:"hook"`
	Outline       []string `json:"outline"`
	FullScript    string   `json:"full_script"`
}

// Write generates a full script for the selected topic
func (w *Writer) Write(ctx context.Context, topic *types.Topic) (*types.Script, error) {
	log.Printf("[script] Generating script for %q via Groq...", topic.Headline)

	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not set")
	}

	reqBody := groqRequest{
		Model: w.cfg.Script.GroqModel,
		Messages: []groqMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(topic, w.cfg.Script.TargetDurationMin, w.cfg.Script.TargetDurationMax)},
		},
		Temperature: w.cfg.Script.Temperature,
		MaxTokens:   8192,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.groq.com/openai/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var groqResp groqResponse
	if err := json.Unmarshal(respBytes, &groqResp); err != nil {
		return nil, fmt.Errorf("parse groq response: %w", err)
	}
	if groqResp.Error != nil {
		return nil, fmt.Errorf("groq error: %s", groqResp.Error.Message)
	}
	if len(groqResp.Choices) == 0 {
		return nil, fmt.Errorf("groq returned no choices")
	}

	content := cleanJSON(groqResp.Choices[0].Message.Content)

	var raw scriptJSON
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse script JSON: %w\nraw content: %s", err, content[:min(200, len(content))])
	}
	if raw.FullScript == "" {
		return nil, fmt.Errorf("script has no narration text")
	}

	out := &types.Script{
		Title:         raw.Title,
		ThumbnailText: raw.ThumbnailText,
		Description:   raw.Description,
		Tags:          raw.Tags,
		Hook:          raw.Hook,
		Outline:       raw.Outline,
		FullScript:    raw.FullScript,
	}
	log.Printf("[script] ✅ Script ready: %q, %d outline scenes, %d words",
		out.Title, len(out.Outline), len(strings.Fields(out.FullScript)))
	return out, nil
}

func buildUserPrompt(topic *types.Topic, minMin, maxMin int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Write a %d-%d minute YouTube script about the following topic.\n\n", minMin, maxMin))
	sb.WriteString(fmt.Sprintf("TOPIC: %s\n", topic.Headline))
	sb.WriteString(fmt.Sprintf("CATEGORY: %s\n\n", topic.Category))
	sb.WriteString(fmt.Sprintf("BACKGROUND:\n%s\n\n", topic.Description))

	if len(topic.Sources) > 0 {
		sb.WriteString("SOURCES:\n")
		for _, u := range topic.Sources {
			sb.WriteString("- " + u + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Respond ONLY with valid JSON. No markdown. No explanation.")
	return sb.String()
}

// cleanJSON strips markdown fences if Groq wraps the response in ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
