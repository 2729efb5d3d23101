// Command soulnetd runs the SoulNet memory journal server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/snowflake"

	"github.com/soulnet-ai/soulnet-go/pkg/achievement"
	"github.com/soulnet-ai/soulnet-go/pkg/analytics"
	"github.com/soulnet-ai/soulnet-go/pkg/auth"
	"github.com/soulnet-ai/soulnet-go/pkg/chat"
	"github.com/soulnet-ai/soulnet-go/pkg/config"
	embedderopenai "github.com/soulnet-ai/soulnet-go/pkg/embedder/openai"
	llmopenai "github.com/soulnet-ai/soulnet-go/pkg/llm/openai"
	"github.com/soulnet-ai/soulnet-go/pkg/memory"
	"github.com/soulnet-ai/soulnet-go/pkg/search"
	"github.com/soulnet-ai/soulnet-go/pkg/sentiment"
	"github.com/soulnet-ai/soulnet-go/pkg/server"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
	"github.com/soulnet-ai/soulnet-go/pkg/storage/mysql"
	"github.com/soulnet-ai/soulnet-go/pkg/storage/postgres"
	"github.com/soulnet-ai/soulnet-go/pkg/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	node, err := snowflake.NewNode(1)
	if err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}

	llmClient, err := llmopenai.NewClient(&llmopenai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}
	defer llmClient.Close()

	embedClient, err := embedderopenai.NewClient(&embedderopenai.Config{
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.OpenAI.EmbeddingModel,
		BaseURL:    cfg.OpenAI.BaseURL,
		Dimensions: cfg.OpenAI.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	defer embedClient.Close()

	validator, err := auth.NewClient(&auth.Config{
		BaseURL: cfg.Auth.URL,
		AnonKey: cfg.Auth.AnonKey,
	})
	if err != nil {
		return fmt.Errorf("init auth client: %w", err)
	}

	classifier := sentiment.NewClassifier(llmClient, logger)
	evaluator := achievement.NewEvaluator(store, store, node, logger)
	memories := memory.NewService(store, store, classifier, embedClient, evaluator, node, logger)
	searcher := search.NewEngine(embedClient, store, cfg.Search.Threshold)
	assembler := chat.NewAssembler(llmClient, store, store, node, llmClient.Model(), logger)
	stats := analytics.NewService(store)

	srv := server.New(&server.Options{
		Config:       cfg,
		Validator:    validator,
		Memories:     memories,
		Searcher:     searcher,
		Chat:         assembler,
		Achievements: evaluator,
		Analytics:    stats,
		Interactions: store,
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func openStore(cfg *config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.Name,
			SSLMode:  cfg.SSLMode,
		})
	case "mysql":
		return mysql.NewClient(&mysql.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.Name,
		})
	default:
		return sqlite.NewClient(&sqlite.Config{DBPath: cfg.Path})
	}
}
