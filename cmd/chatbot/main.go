package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/atelier-marbre/chatbot/internal/config"
	"github.com/atelier-marbre/chatbot/internal/database"
	"github.com/atelier-marbre/chatbot/internal/handler"
	"github.com/atelier-marbre/chatbot/internal/llm"
	"github.com/atelier-marbre/chatbot/internal/repository"
	"github.com/atelier-marbre/chatbot/internal/server"
)

func main() {
	// No-op when no .env file exists.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("could not load configuration")
	}

	log := newLogger(cfg)

	var nrApp *newrelic.Application
	if cfg.Observability.Enabled {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.Observability.ServiceName),
			newrelic.ConfigLicense(cfg.Observability.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("could not start APM agent")
		}
		log.Info().Msg("APM agent enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(ctx, cfg.Database.URL); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL, log, nrApp)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to the order store")
	}
	defer pool.Close()
	log.Info().Msg("connected to the order store")

	completer := llm.NewClient(llm.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		FallbackModel: cfg.LLM.FallbackModel,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       cfg.LLM.Timeout(),
		SystemPrompt:  cfg.Chat.SystemPrompt,
	}, log)

	orders := repository.NewOrderRepository(pool)
	chat := handler.NewChatHandler(orders, completer, cfg.Chat.Mode, log)

	srv := server.New(cfg, chat, nrApp, log)
	log.Info().
		Str("port", cfg.Server.Port).
		Str("mode", cfg.Chat.Mode).
		Str("model", cfg.LLM.Model).
		Str("fallback_model", cfg.LLM.FallbackModel).
		Msg("chat backend listening")
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Primary.Env == "dev" || cfg.Primary.Env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "chatbot").Logger()
}
