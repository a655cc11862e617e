package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/draftforge-ai/authoring-platform/internal/config"
	"github.com/draftforge-ai/authoring-platform/internal/engine"
	"github.com/draftforge-ai/authoring-platform/internal/events"
	"github.com/draftforge-ai/authoring-platform/internal/handler"
	"github.com/draftforge-ai/authoring-platform/internal/llm"
	"github.com/draftforge-ai/authoring-platform/internal/middleware"
	"github.com/draftforge-ai/authoring-platform/internal/service"
	"github.com/draftforge-ai/authoring-platform/pkg/logger"
	"github.com/draftforge-ai/authoring-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "authoring-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Audit stream is optional: the engine runs without it, it just leaves
	// no durable record.
	var natsClient *events.Client
	var audit engine.AuditPublisher
	if cfg.AuditEnabled {
		natsClient, err = events.Connect(ctx, events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("failed to connect to NATS; audit stream disabled", zap.Error(err))
		} else {
			defer natsClient.Close()
			publisher := events.NewPublisher(natsClient, log)
			if err := publisher.EnsureStream(ctx); err != nil {
				log.Warn("failed to ensure audit stream", zap.Error(err))
			}
			audit = publisher
		}
	}

	provider := llm.Provider(cfg.DefaultProvider)
	apiKey := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	llmClient, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Fatal("failed to create LLM client", zap.Error(err))
	}
	log.Info("LLM backend configured", zap.String("provider", llmClient.Name()))

	locator := &engine.Locator{
		PrefixWindow: cfg.PatchPrefixWindow,
		RegexBound:   cfg.PatchRegexBound,
		RegexTimeout: cfg.PatchRegexTimeout,
	}
	engineCfg := engine.Config{
		DefaultModel:   cfg.DefaultModel,
		MaxTokens:      cfg.MaxTokens,
		ThinkingBudget: cfg.ThinkingBudget,
		ContextBudget:  cfg.ContextBudget,
	}

	sessionService := service.NewSessionService(llmClient, audit, locator, engineCfg, log)
	generateService := service.NewGenerateService(llmClient, cfg.MaxTokens, log)

	healthHandler := handler.NewHealthHandler(natsClient)
	sessionHandler := handler.NewSessionHandler(sessionService, log)
	chatHandler := handler.NewChatHandler(sessionService, log)
	versionHandler := handler.NewVersionHandler(sessionService, log)
	documentHandler := handler.NewDocumentHandler(sessionService, generateService, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.CorrelationIDHeader},
		ExposedHeaders:   []string{middleware.CorrelationIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)

				r.Post("/chat", chatHandler.Send)
				r.Post("/chat/stop", chatHandler.Stop)
				r.Post("/chat/reset", chatHandler.Reset)

				r.Get("/messages", chatHandler.ListMessages)
				r.Put("/messages/{index}", chatHandler.EditMessage)
				r.Post("/messages/{index}/retry", chatHandler.RetryMessage)

				r.Get("/document", documentHandler.Get)
				r.Post("/document/generate", documentHandler.Generate)

				r.Get("/versions", versionHandler.List)
				r.Post("/versions", versionHandler.Save)
				r.Delete("/versions/preview", versionHandler.ExitPreview)
				r.Post("/versions/{versionID}/preview", versionHandler.Preview)
				r.Post("/versions/{versionID}/revert", versionHandler.Revert)
				r.Delete("/versions/{versionID}", versionHandler.Delete)
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
