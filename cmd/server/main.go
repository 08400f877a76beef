package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"community-hub/internal/cache"
	"community-hub/internal/chat"
	"community-hub/internal/config"
	"community-hub/internal/db"
	"community-hub/internal/flow"
	"community-hub/internal/middleware"
)

func main() {
	cfg := config.MustLoad()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to postgres failed")
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("connecting to redis failed")
	}
	defer redisClient.Close()

	historyCache := cache.New(redisClient)

	chatStore := chat.NewRepository(database.Conn)
	hub := chat.NewHub(chatStore, historyCache, logger)
	chatHandler := chat.NewHandler(hub, chatStore, historyCache, cfg.HistoryTTL, logger)

	runner := flow.NewRunnerClient(cfg.RunnerURL, 30*time.Second)
	flowStore := flow.NewRepository(database.Conn)
	notifier := flow.NewNotifier(hub, runner, logger)
	flowHandler := flow.NewHandler(flowStore, runner, notifier, logger)

	serviceAuth := middleware.NewServiceAuth(cfg.CallbackSecret)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/api/socket", chatHandler.ServeWs)
	r.Get("/api/messages", chatHandler.GetChatHistory)
	r.Post("/api/scripts/{id}/execute", flowHandler.Execute)
	r.Delete("/api/scripts/{id}/execute/{executionID}", flowHandler.Cancel)

	r.Group(func(r chi.Router) {
		r.Use(serviceAuth.Handle)
		r.Post("/internal/executions/status", flowHandler.PushStatus)
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
}
