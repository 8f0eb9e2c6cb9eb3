package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/rmaksim/inventory-service/internal/api"
	c "github.com/rmaksim/inventory-service/internal/cache"
	"github.com/rmaksim/inventory-service/internal/config"
	"github.com/rmaksim/inventory-service/internal/observability"
	"github.com/rmaksim/inventory-service/internal/repository"
	s "github.com/rmaksim/inventory-service/internal/service"
)

const serviceName = "inventory-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTELHost, cfg.OTELPort)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.DatabaseName)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	if err := repository.CreateIndexes(ctx, mongoDB); err != nil {
		logger.Fatal("failed to create indexes", zap.Error(err))
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.DatabaseName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	metrics := observability.NewMetrics()
	repo := repository.NewMongoRepository(mongoDB, cfg.StoreTimeout, metrics)
	recordCache := c.NewRedisCache(redisClient)
	engine := s.NewInventoryService(repo, recordCache, metrics, logger, cfg.CASMaxRetries)

	handler := api.NewHandler(engine, logger, cfg.Environment, cfg.DefaultPageSize, cfg.MaxPageSize, cfg.RequestTimeout)
	tracer := observability.NewTracer(metrics, logger)
	router := api.NewRouter(handler, tracer, metrics, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  2 * cfg.RequestTimeout,
	}

	go func() {
		logger.Info("inventory service listening",
			zap.Int("port", cfg.Port),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down inventory service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", zap.Error(err))
	}
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		logger.Error("failed to disconnect MongoDB", zap.Error(err))
	}

	logger.Info("inventory service stopped")
}
