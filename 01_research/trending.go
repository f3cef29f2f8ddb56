package research

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"autocast-pipeline/config"
	"autocast-pipeline/types"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

// hookKeywords boost a candidate's virality score when present
var hookKeywords = []string{
	"secret", "revealed", "shocking", "banned", "exposed", "collapse",
	"breakthrough", "record", "first ever", "nobody", "hidden", "warning",
	"insane", "unbelievable", "viral", "leaked",
}

// TrendingStrategy discovers topics from live Reddit activity
type TrendingStrategy struct {
	cfg    *config.Config
	client *reddit.Client
}

// NewTrendingStrategy builds the live-search strategy. Credentials come from
// the environment; without them the read-only client is used.
func NewTrendingStrategy(cfg *config.Config) (*TrendingStrategy, error) {
	creds := reddit.Credentials{
		ID:       os.Getenv("REDDIT_CLIENT_ID"),
		Secret:   os.Getenv("REDDIT_CLIENT_SECRET"),
		Username: os.Getenv("REDDIT_USERNAME"),
		Password: os.Getenv("REDDIT_PASSWORD"),
	}

	var client *reddit.Client
	var err error
	if creds.ID != "" && creds.Secret != "" {
		client, err = reddit.NewClient(creds)
	} else {
		client, err = reddit.NewReadonlyClient()
	}
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &TrendingStrategy{cfg: cfg, client: client}, nil
}

func (t *TrendingStrategy) Name() string { return "trending" }

// Discover pulls hot posts from the configured subreddits and maps them to
// scored topic candidates
func (t *TrendingStrategy) Discover(ctx context.Context, forcedConcept string) ([]types.Topic, error) {
	var candidates []types.Topic
	cutoff := time.Now().AddDate(0, 0, -t.cfg.Research.StoryLookbackDays)

	for _, sub := range t.cfg.Research.Subreddits {
		posts, _, err := t.client.Subreddit.HotPosts(ctx, sub, &reddit.ListOptions{
			Limit: t.cfg.Research.MaxCandidates,
		})
		if err != nil {
			return nil, fmt.Errorf("reddit r/%s: %w", sub, err)
		}

		for _, post := range posts {
			if post.Created != nil && post.Created.Before(cutoff) {
				continue
			}
			if forcedConcept != "" && !mentions(post, forcedConcept) {
				continue
			}
			topic := types.Topic{
				ID:            "reddit_" + post.ID,
				Headline:      post.Title,
				Category:      "r/" + sub,
				ViralityScore: scorePost(post),
				Description:   post.Body,
				Sources:       []string{"https://reddit.com" + post.Permalink},
			}
			if post.URL != "" && post.URL != topic.Sources[0] {
				topic.Sources = append(topic.Sources, post.URL)
			}
			candidates = append(candidates, topic)
		}
	}
	return candidates, nil
}

// scorePost converts raw Reddit engagement into a virality score
func scorePost(post *reddit.Post) float64 {
	score := float64(post.Score)

	lower := strings.ToLower(post.Title + " " + post.Body)
	for _, kw := range hookKeywords {
		if strings.Contains(lower, kw) {
			score += 50
		}
	}
	if post.Created != nil && time.Since(post.Created.Time) < 72*time.Hour {
		score += 200
	}
	if len(post.Body) > 500 {
		score += 75
	}
	return score
}

func mentions(post *reddit.Post, concept string) bool {
	lower := strings.ToLower(post.Title + " " + post.Body)
	return strings.Contains(lower, strings.ToLower(concept))
}
