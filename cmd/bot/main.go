package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xaenox/scribe-bot/internal/bot"
	"github.com/xaenox/scribe-bot/internal/grammar"
	"github.com/xaenox/scribe-bot/internal/storage"
	"github.com/xaenox/scribe-bot/internal/transcriber"
	"github.com/xaenox/scribe-bot/pkg/config"
	"github.com/xaenox/scribe-bot/pkg/retry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
	}

	// Initialize transcription client
	transcriberClient := transcriber.New(transcriber.Config{
		APIKey: cfg.ElevenLabs.APIKey,
		Model:  cfg.ElevenLabs.Model,
	}, policy, logger)

	// Initialize grammar client
	var provider grammar.Provider
	switch cfg.Grammar.Provider {
	case "gemini":
		provider = grammar.NewGeminiProvider(
			cfg.Grammar.Gemini.APIKey,
			cfg.Grammar.Gemini.Model,
			cfg.Grammar.MaxTokens,
			cfg.Grammar.Temperature,
		)
	default:
		provider = grammar.NewOpenAIProvider(
			cfg.Grammar.OpenAI.APIKey,
			cfg.Grammar.OpenAI.Model,
			cfg.Grammar.MaxTokens,
			cfg.Grammar.Temperature,
		)
	}
	logger.Info("Grammar provider selected",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()))

	grammarClient := grammar.New(provider, policy, logger)

	// Initialize bot
	b, err := bot.New(cfg, transcriberClient, grammarClient, store, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Sweep stale temp files on startup and periodically after
	maxAge := time.Duration(cfg.Files.MaxAgeHours) * time.Hour
	b.CleanupOldFiles(maxAge)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			b.CleanupOldFiles(maxAge)
		}
	}()

	// Stop polling on SIGINT/SIGTERM
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		b.Stop()
	}()

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
