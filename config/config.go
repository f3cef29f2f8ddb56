package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Research ResearchConfig `yaml:"research"`
	Script   ScriptConfig   `yaml:"script"`
	Assets   AssetsConfig   `yaml:"assets"`
	Compose  ComposeConfig  `yaml:"compose"`
	Upload   UploadConfig   `yaml:"upload"`
	Server   ServerConfig   `yaml:"server"`
	Paths    PathsConfig    `yaml:"paths"`
}

type ResearchConfig struct {
	Subreddits        []string `yaml:"subreddits"`
	Categories        []string `yaml:"categories"`
	TrendingWeight    float64  `yaml:"trending_weight"`
	MaxCandidates     int      `yaml:"max_candidates"`
	StoryLookbackDays int      `yaml:"story_lookback_days"`
}

type ScriptConfig struct {
	GroqModel         string  `yaml:"groq_model"`
	Temperature       float64 `yaml:"temperature"`
	TargetDurationMin int     `yaml:"target_duration_min"`
	TargetDurationMax int     `yaml:"target_duration_max"`
}

type AssetsConfig struct {
	ThumbnailVariants int    `yaml:"thumbnail_variants"`
	StoryboardTarget  int    `yaml:"storyboard_target"`
	StoryboardBatch   int    `yaml:"storyboard_batch"`
	VoiceID           string `yaml:"voice_id"`
	TTSSampleRate     int    `yaml:"tts_sample_rate"`
	IntroPollSeconds  int    `yaml:"intro_poll_seconds"`
	IntroPollAttempts int    `yaml:"intro_poll_attempts"`
}

type ComposeConfig struct {
	FPS int `yaml:"fps"`
}

type UploadConfig struct {
	CategoryID      string `yaml:"category_id"`
	Visibility      string `yaml:"visibility"`
	DefaultLanguage string `yaml:"default_language"`
	MadeForKids     bool   `yaml:"made_for_kids"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type PathsConfig struct {
	Output       string `yaml:"output"`
	UsedTopicLog string `yaml:"used_topic_log"`
	TokenFile    string `yaml:"token_file"`
}

// Load reads config.yaml and returns a Config with defaults applied
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Research.TrendingWeight == 0 {
		c.Research.TrendingWeight = 0.3
	}
	if c.Research.MaxCandidates == 0 {
		c.Research.MaxCandidates = 10
	}
	if c.Research.StoryLookbackDays == 0 {
		c.Research.StoryLookbackDays = 7
	}
	if c.Script.GroqModel == "" {
		c.Script.GroqModel = "llama-3.3-70b-versatile"
	}
	if c.Assets.ThumbnailVariants == 0 {
		c.Assets.ThumbnailVariants = 3
	}
	if c.Assets.StoryboardTarget == 0 {
		c.Assets.StoryboardTarget = 20
	}
	if c.Assets.StoryboardBatch == 0 {
		c.Assets.StoryboardBatch = 2
	}
	if c.Assets.TTSSampleRate == 0 {
		c.Assets.TTSSampleRate = 24000
	}
	if c.Assets.IntroPollSeconds == 0 {
		c.Assets.IntroPollSeconds = 10
	}
	if c.Assets.IntroPollAttempts == 0 {
		c.Assets.IntroPollAttempts = 30
	}
	if c.Compose.FPS == 0 {
		c.Compose.FPS = 30
	}
	if c.Upload.CategoryID == "" {
		c.Upload.CategoryID = "28"
	}
	if c.Upload.Visibility == "" {
		c.Upload.Visibility = "public"
	}
	if c.Upload.DefaultLanguage == "" {
		c.Upload.DefaultLanguage = "en"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Paths.Output == "" {
		c.Paths.Output = "output"
	}
	if c.Paths.UsedTopicLog == "" {
		c.Paths.UsedTopicLog = "used_topics.json"
	}
	if c.Paths.TokenFile == "" {
		c.Paths.TokenFile = "youtube_token.json"
	}
}
