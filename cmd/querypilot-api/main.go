package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querypilot/querypilot/internal/api"
	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/execute"
	"github.com/querypilot/querypilot/internal/inference"
	"github.com/querypilot/querypilot/internal/introspect"
	"github.com/querypilot/querypilot/internal/lake"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/pipeline"
	"github.com/querypilot/querypilot/internal/prompt"
	"github.com/querypilot/querypilot/internal/schema"
	s3store "github.com/querypilot/querypilot/internal/storage/s3"
	"github.com/querypilot/querypilot/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("querypilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dialect, err := store.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		logger.Error("invalid database dialect", slog.Any("error", err))
		os.Exit(1)
	}

	dsn := cfg.Database.DSN
	if cfg.Lake.Enabled {
		// mounted views live in a private in-memory catalog
		dsn = ":memory:"
	}
	db, err := store.Open(context.Background(), store.Config{
		Dialect:         dialect,
		DSN:             dsn,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	introspector, closeSource, err := newIntrospector(cfg, dialect, db)
	if err != nil {
		logger.Error("failed to initialize schema source", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeSource()

	builder, err := prompt.New(cfg.Pipeline.PromptVersion, string(dialect))
	if err != nil {
		logger.Error("failed to load prompt template", slog.Any("error", err))
		os.Exit(1)
	}
	adapter, err := inference.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize inference adapter", slog.Any("error", err))
		os.Exit(1)
	}
	gate := inference.NewSerial(adapter)
	defer gate.Close()

	controller, err := pipeline.NewController(builder, gate, pipeline.ControllerConfig{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize retry controller", slog.Any("error", err))
		os.Exit(1)
	}
	engine, err := execute.New(db, execute.Config{
		Dialect:              dialect,
		Timeout:              cfg.Pipeline.ExecTimeout,
		MaxConcurrentReaders: cfg.Pipeline.MaxConcurrentReaders,
		RetryBackoff:         cfg.Pipeline.ExecRetryBackoff,
	})
	if err != nil {
		logger.Error("failed to initialize execution engine", slog.Any("error", err))
		os.Exit(1)
	}
	converter, err := pipeline.NewConverter(
		schema.NewCache(introspector.Introspect, cfg.Pipeline.SchemaCacheTTL),
		controller,
		engine,
		pipeline.ConverterConfig{
			RowLimit:     cfg.Pipeline.RowLimit,
			HistoryLimit: cfg.Pipeline.HistoryLimit,
			Logger:       logger,
		},
	)
	if err != nil {
		logger.Error("failed to initialize converter", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:    logger,
		Converter: converter,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(db),
			api.CheckSchema(converter),
		),
		DependencyTimout: 5 * time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", string(dialect)),
			slog.String("ai_provider", cfg.AI.Provider),
			slog.Bool("lake", cfg.Lake.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func newIntrospector(cfg config.Config, dialect store.Dialect, db *sql.DB) (introspect.Introspector, func(), error) {
	if !cfg.Lake.Enabled {
		introspector, err := introspect.New(dialect, db, cfg.Database.Schema)
		return introspector, func() {}, err
	}

	objectStore, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:        cfg.Lake.Endpoint,
		Region:          cfg.Lake.Region,
		Bucket:          cfg.Lake.Bucket,
		AccessKeyID:     cfg.Lake.AccessKeyID,
		SecretAccessKey: cfg.Lake.SecretAccessKey,
		UseSSL:          cfg.Lake.UseSSL,
		Prefix:          cfg.Lake.Prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("object store: %w", err)
	}
	source, err := lake.New(objectStore, db, "")
	if err != nil {
		return nil, nil, err
	}
	return source, func() { _ = source.Close() }, nil
}
