package main

import (
	"context"
	"log"
	"os"

	research "autocast-pipeline/01_research"
	script "autocast-pipeline/02_script"
	assets "autocast-pipeline/03_assets"
	compose "autocast-pipeline/04_compose"
	upload "autocast-pipeline/05_upload"
	"autocast-pipeline/config"
	"autocast-pipeline/pipeline"
	"autocast-pipeline/server"
	"autocast-pipeline/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env (local dev only — production uses real env)
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Paths.Output, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	log.Println("🎬 AutoCast Pipeline starting")

	history := research.NewHistory(cfg.Paths.UsedTopicLog)
	trending, err := research.NewTrendingStrategy(cfg)
	if err != nil {
		log.Fatalf("Failed to init trending strategy: %v", err)
	}
	curated := research.NewCuratedStrategy(cfg, history)
	discovery := research.NewService(cfg, trending, curated, history)

	st := store.New()
	ctrl := pipeline.New(cfg, st,
		discovery,
		script.New(cfg),
		assets.New(cfg),
		compose.New(cfg),
		upload.New(cfg),
	)

	srv := server.New(cfg, st, ctrl)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
