package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/answer"
	"github.com/bandham-manikanta/qa-system/internal/config"
	"github.com/bandham-manikanta/qa-system/internal/embedding"
	"github.com/bandham-manikanta/qa-system/internal/index"
	"github.com/bandham-manikanta/qa-system/internal/retrieve"
	"github.com/bandham-manikanta/qa-system/internal/server"
	"github.com/bandham-manikanta/qa-system/internal/service"
	"github.com/bandham-manikanta/qa-system/internal/source"
	"github.com/bandham-manikanta/qa-system/internal/vectorstore"
	"github.com/bandham-manikanta/qa-system/internal/vectorstore/memory"
	"github.com/bandham-manikanta/qa-system/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Assemble components
	src := source.NewClient(source.Config{
		BaseURL:          cfg.Source.BaseURL,
		PageSize:         cfg.Source.PageSize,
		MaxRetries:       cfg.Source.MaxRetries,
		PageDelay:        time.Duration(cfg.Source.PageDelayMS) * time.Millisecond,
		Timeout:          time.Duration(cfg.Source.TimeoutSecs) * time.Second,
		AllowEmptyCorpus: cfg.Source.AllowEmptyCorpus,
	}, logger)
	cache := source.NewCache(src)

	emb, err := embedding.NewClient(embedding.Config{
		BaseURL:      cfg.Embedding.BaseURL,
		APIKey:       os.Getenv(cfg.Embedding.APIKeyEnv),
		Model:        cfg.Embedding.Model,
		Dimension:    cfg.Embedding.Dimension,
		MaxRetries:   cfg.Embedding.MaxRetries,
		Concurrency:  cfg.Embedding.Concurrency,
		RequestDelay: time.Duration(cfg.Embedding.RequestDelayMS) * time.Millisecond,
		QueryRPS:     cfg.Embedding.QueryRPS,
		Timeout:      time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("embedding client init failed", zap.Error(err))
	}

	var backend vectorstore.Backend
	switch cfg.VectorStore.Type {
	case "memory":
		backend = memory.NewBackend()
	case "qdrant", "":
		if cfg.VectorStore.Qdrant == nil {
			logger.Fatal("qdrant config missing")
		}
		backend = qdrant.NewBackend(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     os.Getenv(cfg.VectorStore.Qdrant.APIKeyEnv),
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		logger.Fatal("unknown vector store", zap.String("type", cfg.VectorStore.Type))
	}

	store := index.NewStore(backend, emb, index.Config{
		UpsertBatchSize: cfg.VectorStore.UpsertBatchSize,
		Concurrency:     cfg.Embedding.Concurrency,
	}, logger)

	retriever := retrieve.NewRetriever(emb, store, cache, logger)

	synth, err := answer.NewSynthesizer(answer.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    os.Getenv(cfg.LLM.APIKeyEnv),
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("synthesizer init failed", zap.Error(err))
	}

	svc := service.NewQAService(cache, store, retriever, synth, cfg.Retrieval.TopK, logger)
	srv := server.NewServer(svc, &cfg.Server, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
