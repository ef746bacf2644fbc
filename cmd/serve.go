package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/JohanValero/research-agent/db"
	"github.com/JohanValero/research-agent/internal/agent"
	"github.com/JohanValero/research-agent/internal/api"
	"github.com/JohanValero/research-agent/internal/config"
	"github.com/JohanValero/research-agent/internal/i18n"
	"github.com/JohanValero/research-agent/internal/llm"
	"github.com/JohanValero/research-agent/internal/log"
	"github.com/JohanValero/research-agent/internal/pipeline"
	"github.com/JohanValero/research-agent/internal/store"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute // SSE streaming needs a long write window
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// Completion backend throttle: steady requests per second and burst.
const (
	llmRequestsPerSecond = 2
	llmBurst             = 5
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes every layer and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	i18n.Init(cfg.Language)

	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: flagLogJSON})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting research-agent", "version", AppVersion)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	st := store.New(pool, logger)

	client, err := llm.New(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Limiter: rate.NewLimiter(rate.Limit(llmRequestsPerSecond), llmBurst),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating completion client: %w", err)
	}

	engine, err := pipeline.New(pipeline.Config{
		Client:      client,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	runner, err := agent.NewRunner(st, engine, cfg.HistoryLimit, logger)
	if err != nil {
		return fmt.Errorf("creating runner: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:        logger,
		Conversations: st,
		Messages:      st,
		Runner:        runner,
		Pool:          pool,
		RateBurst:     cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ServerAddr,
		"api", "/api/*",
		"health", "/health, /ready",
		"model", cfg.LLMModel,
		"language", i18n.Language(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
