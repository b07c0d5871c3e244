package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codedocs/internal/config"
	"codedocs/internal/llm"
	"codedocs/internal/pipeline"
	"codedocs/internal/rag"
	"codedocs/internal/server"
	"codedocs/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	stores, closeStores, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer closeStores()

	ctx := context.Background()

	client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
		RPS:    cfg.Gemini.RPS,
		Burst:  cfg.Gemini.Burst,
	})
	if err != nil {
		log.Fatalf("Failed to init Gemini client: %v", err)
	}
	defer client.Close()
	wrapped := llm.Chain(client, llm.Retry(3, time.Second))

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.Gemini.APIKey, cfg.Gemini.EmbedModel)
	if err != nil {
		log.Fatalf("Failed to init embedder: %v", err)
	}

	var snapshots *store.S3Store
	if cfg.Snapshot.Enabled {
		snapshots, err = store.NewS3Store(cfg.Snapshot.S3)
		if err != nil {
			log.Printf("Snapshot store disabled: %v", err)
			snapshots = nil
		}
	}

	runner := pipeline.NewRunner(stores, wrapped, embedder, snapshots)
	answerer := &rag.Answerer{LLM: wrapped, Embedder: embedder, Chunks: stores.Chunks}
	api := server.NewAPI(stores, runner, answerer, snapshots)
	srv := server.New(cfg.Port, server.NewMux(api))

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

func openStores(cfg *config.Config) (store.Stores, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL is not set; using in-memory stores")
		return store.NewMemoryStores(), func() {}, nil
	}
	pg, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return store.Stores{}, nil, err
	}
	return pg.Bundle(), func() { _ = pg.Close() }, nil
}
