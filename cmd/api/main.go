package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/scan-validator/internal/config"
	"github.com/scan-validator/internal/infrastructure/dynamo"
	jwtinfra "github.com/scan-validator/internal/infrastructure/jwt"
	"github.com/scan-validator/internal/infrastructure/memory"
	redisinfra "github.com/scan-validator/internal/infrastructure/redis"
	"github.com/scan-validator/internal/infrastructure/sns"
	transporthttp "github.com/scan-validator/internal/transport/http"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(newLogger(cfg))
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		slog.Error("init dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv,
			"store", cfg.StoreBackend, "tokens", cfg.TokenBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
		return
	}
	slog.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// buildDeps wires the storage engines selected by STORE_BACKEND and
// TOKEN_BACKEND. The returned cleanup closes any opened connections.
func buildDeps(ctx context.Context, cfg *config.Config) (*transporthttp.Deps, func(), error) {
	deps := &transporthttp.Deps{}
	cleanup := func() {}

	// JWT provider (optional; without it every caller is anonymous).
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		deps.JWTProvider = p
	} else {
		slog.Warn("JWT provider not available", "error", err)
	}

	needDynamo := cfg.StoreBackend == config.BackendDynamo || cfg.TokenBackend == config.BackendDynamo
	var dynamoClient dynamo.API
	if needDynamo {
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		// Creates the tables if they don't exist.
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		dynamoClient = client
	}

	switch cfg.StoreBackend {
	case config.BackendDynamo:
		deps.Bindings = dynamo.NewBindingRepo(dynamoClient, cfg.DynamoTables.Bindings)
		deps.Ledger = dynamo.NewAttendanceRepo(dynamoClient, cfg.DynamoTables.AttendanceHeads, cfg.DynamoTables.AttendanceLogs, cfg.LedgerMaxAttempts)
		deps.Profiles = dynamo.NewProfileRepo(dynamoClient, cfg.DynamoTables.Profiles)
	case config.BackendMemory:
		slog.Warn("using in-memory storage; state is lost on restart")
		deps.Bindings = memory.NewBindingStore()
		deps.Ledger = memory.NewLedger()
		deps.Profiles = memory.NewProfileStore()
	default:
		return nil, cleanup, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.TokenBackend {
	case config.BackendDynamo:
		deps.Tokens = dynamo.NewTokenRepo(dynamoClient, cfg.DynamoTables.Tokens)
	case config.BackendRedis:
		client, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { _ = client.Close() }
		deps.Tokens = redisinfra.NewTokenStore(client)
	case config.BackendMemory:
		deps.Tokens = memory.NewTokenStore()
	default:
		return nil, cleanup, fmt.Errorf("unknown TOKEN_BACKEND %q", cfg.TokenBackend)
	}

	// SNS attendance publisher (optional).
	if cfg.AttendanceTopicARN != "" {
		awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
		if err != nil {
			slog.Warn("SNS publisher not available", "error", err)
		} else {
			deps.Publisher = sns.NewPublisher(sns.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.AttendanceTopicARN)
		}
	}

	return deps, cleanup, nil
}
