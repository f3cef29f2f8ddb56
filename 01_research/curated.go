package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/types"

	"github.com/google/uuid"
)

const curatedSystemPrompt = `You are a viral content strategist for a faceless YouTube channel.
Given a list of content categories, propose video topic candidates with strong click potential.

You MUST respond with ONLY valid JSON — no preamble, no markdown, no explanation.

Respond with a JSON array where each element has:
- "headline": string (the topic as a compelling video subject)
- "category": string (one of the provided categories)
- "virality_score": number 0-100 (your estimate of click potential)
- "description": string (2-3 sentences of factual background)
- "sources": array of URL strings (reference links, may be empty)`

// CuratedStrategy brainstorms topics from the channel's curated categories
// via Groq, deduplicated against the topic history
type CuratedStrategy struct {
	cfg        *config.Config
	history    *History
	httpClient *http.Client
}

// NewCuratedStrategy creates the curated-database strategy
func NewCuratedStrategy(cfg *config.Config, history *History) *CuratedStrategy {
	return &CuratedStrategy{
		cfg:        cfg,
		history:    history,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *CuratedStrategy) Name() string { return "curated" }

type curatedTopicJSON struct {
	Headline      string   `json:"headline"`
	Category      string   `json:"category"`
	ViralityScore float64  `json:"virality_score"`
	Description   string   `json:"description"`
	Sources       []string `json:"sources"`
}

// Discover asks Groq for candidate topics and drops any already used
func (c *CuratedStrategy) Discover(ctx context.Context, forcedConcept string) ([]types.Topic, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not set")
	}

	userPrompt := c.buildPrompt(forcedConcept)

	reqBody := map[string]interface{}{
		"model": c.cfg.Script.GroqModel,
		"messages": []map[string]string{
			{"role": "system", "content": curatedSystemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.9,
		"max_tokens":  2048,
	}

	bodyBytes, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST",
		"https://api.groq.com/openai/v1/chat/completions",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(resp.Body)

	var groqResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
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

	var raw []curatedTopicJSON
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse topic JSON: %w", err)
	}

	var candidates []types.Topic
	for _, r := range raw {
		if r.Headline == "" {
			continue
		}
		id := "curated_" + slug(r.Headline)
		if c.history.Used(id) {
			continue
		}
		candidates = append(candidates, types.Topic{
			ID:            id,
			Headline:      r.Headline,
			Category:      r.Category,
			ViralityScore: r.ViralityScore,
			Description:   r.Description,
			Sources:       r.Sources,
		})
	}
	return candidates, nil
}

func (c *CuratedStrategy) buildPrompt(forcedConcept string) string {
	var sb strings.Builder
	if forcedConcept != "" {
		sb.WriteString(fmt.Sprintf("Propose %d video topics centered on this concept: %q.\n", c.cfg.Research.MaxCandidates, forcedConcept))
	} else {
		sb.WriteString(fmt.Sprintf("Propose %d video topics.\n", c.cfg.Research.MaxCandidates))
	}
	sb.WriteString("CATEGORIES:\n")
	for _, cat := range c.cfg.Research.Categories {
		sb.WriteString("- " + cat + "\n")
	}
	sb.WriteString("\nRespond ONLY with a valid JSON array.")
	return sb.String()
}

// slug derives a stable dedup key from a headline so regenerated topics
// still collide with the history log
func slug(headline string) string {
	s := strings.ToLower(strings.TrimSpace(headline))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return uuid.NewString()[:8]
	}
	if len(out) > 60 {
		out = out[:60]
	}
	return out
}

// cleanJSON strips markdown fences if Groq wraps the response in ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
