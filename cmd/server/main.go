package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-insights/internal/api"
	"crm-insights/internal/config"
	"crm-insights/internal/crm"
	"crm-insights/internal/feed"
	"crm-insights/internal/logging"
	"crm-insights/internal/redis"
	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_server", "service", "crm-insights", "http_addr", cfg.HTTPAddr)

	redisClient, err := redis.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	store := session.NewStore(logger, redisClient, cfg.SessionSecret, cfg.SessionTTL)
	auth := rollout.NewAuth(cfg.DefaultClientID, cfg.DefaultClientSecret, cfg.DefaultConsumerKey, cfg.TokenTTL)
	client := rollout.NewClient(logger, auth)
	service := crm.NewService(logger, client, cfg)
	hub := feed.NewHub(logger)

	srv := api.NewServer(logger, cfg, redisClient, store, auth, service, hub)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server_started", "addr", cfg.HTTPAddr)

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	logger.Info("server_stopped")
}
