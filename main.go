package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/config"
	"github.com/carelens/carelens-engine/pkg/conversation"
	"github.com/carelens/carelens-engine/pkg/feedback"
	"github.com/carelens/carelens-engine/pkg/handlers"
	"github.com/carelens/carelens-engine/pkg/llm"
	"github.com/carelens/carelens-engine/pkg/logging"
	"github.com/carelens/carelens-engine/pkg/middleware"
	"github.com/carelens/carelens-engine/pkg/pipeline"
	"github.com/carelens/carelens-engine/pkg/schema"
	"github.com/carelens/carelens-engine/pkg/warehouse"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("warehouse", logging.SanitizeConnectionString(cfg.Warehouse.ConnectionString())),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("development_mode", cfg.DevelopmentMode()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wh, err := warehouse.NewPostgres(ctx, warehouse.Config{
		ConnString:         cfg.Warehouse.ConnectionString(),
		MaxConnections:     cfg.Warehouse.MaxConnections,
		StatementTimeoutMS: cfg.Warehouse.StatementTimeoutMS,
	}, logger)
	if err != nil {
		logger.Fatal("warehouse connection failed", zap.Error(err))
	}
	defer func() { _ = wh.Close() }()

	catalogue := schema.NewCatalogue(logger)
	if err := catalogue.Refresh(ctx, wh); err != nil {
		logger.Fatal("initial schema introspection failed", zap.Error(err))
	}

	client, err := llm.NewClient(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		logger.Fatal("llm client setup failed", zap.Error(err))
	}
	oracle := llm.NewOracle(client, llm.OracleConfig{
		Timeout:          time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		DefaultMaxTokens: cfg.LLM.MaxTokens,
	}, logger)

	conversations := conversation.NewStore(conversation.Config{
		HistoryCap: cfg.Conversation.HistoryCap,
		TTL:        time.Duration(cfg.Conversation.TTLMinutes) * time.Minute,
	}, logger)
	defer conversations.Stop()

	fb, err := feedback.NewStore(cfg.Feedback.Dir, cfg.Feedback.Enabled, logger)
	if err != nil {
		logger.Fatal("feedback store setup failed", zap.Error(err))
	}

	library, err := pipeline.NewTemplateLibrary(cfg.Features.TemplatesPath)
	if err != nil {
		logger.Fatal("template library setup failed", zap.Error(err))
	}

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewIntentRouter(oracle, logger),
		pipeline.NewDomainRouter(catalogue, logger),
		pipeline.NewIntentClassifier(logger),
		pipeline.NewSQLGenerator(oracle, catalogue, conversations, library, pipeline.GeneratorConfig{
			Dialect:          "PostgreSQL",
			TemplatesEnabled: cfg.Features.GroundedTemplates,
			Temperature:      cfg.LLM.Temperature,
		}, logger),
		pipeline.NewSafetyValidator(logger),
		pipeline.NewSQLRewriter(logger),
		pipeline.NewQueryExecutor(wh, pipeline.ExecutorConfig{
			RowCap:  cfg.Results.RowCap,
			Timeout: time.Duration(cfg.Warehouse.StatementTimeoutMS) * time.Millisecond,
		}, logger),
		pipeline.NewResultSanitizer(pipeline.SanitizerConfig{
			SuppressionKeywords: cfg.Results.SuppressionKeywords,
		}, logger),
		pipeline.NewInsightGenerator(oracle, pipeline.InsightConfig{
			LegacyFallback: cfg.Features.LegacyFallback,
		}, logger),
		conversations,
		fb,
		oracle,
		pipeline.OrchestratorConfig{
			RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		logger,
	)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, oracle, conversations, logger).RegisterRoutes(mux)

	api := http.NewServeMux()
	handlers.NewQueryHandler(orchestrator, logger).RegisterRoutes(api)
	handlers.NewSessionHandler(conversations, logger).RegisterRoutes(api)
	handlers.NewSchemaHandler(catalogue, wh, logger).RegisterRoutes(api)
	handlers.NewFeedbackHandler(fb, logger).RegisterRoutes(api)

	authed := middleware.APIKeyAuth(middleware.AuthConfig{
		AdminKey:   cfg.AdminAPIKey,
		AnalystKey: cfg.AnalystAPIKey,
		PublicKey:  cfg.PublicAPIKey,
	}, logger)(api)
	mux.Handle("/api/", authed)

	handler := middleware.RequestLogger(logger)(middleware.CORS(cfg.CORSOrigins)(mux))

	server := &http.Server{
		Addr:         cfg.BindAddr + ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("starting carelens-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopmentConfig().Build()
	}
	return zap.NewProduction()
}
