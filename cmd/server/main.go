package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	zl "github.com/rs/zerolog/log"

	"github.com/stayconnect/stayconnect/internal/adapter/driven/gateway/ws"
	"github.com/stayconnect/stayconnect/internal/adapter/driven/media/pion"
	memstore "github.com/stayconnect/stayconnect/internal/adapter/driven/store/memory"
	redisstore "github.com/stayconnect/stayconnect/internal/adapter/driven/store/redis"
	handler "github.com/stayconnect/stayconnect/internal/adapter/driving/http"
	"github.com/stayconnect/stayconnect/internal/config"
	"github.com/stayconnect/stayconnect/internal/core/port"
	"github.com/stayconnect/stayconnect/internal/core/service"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	zl.Logger = l

	cfg := config.Load()
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := memstore.New()

	var calls port.CallStore = mem
	var history port.HistoryStore = mem
	if cfg.Store == "redis" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			l.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to reach redis")
		}
		rs := redisstore.New(ctx, client)
		calls = rs
		history = rs
		l.Info().Str("addr", cfg.RedisAddr).Msg("Using redis call store")
	}

	hub := ws.NewHub()
	go hub.Run()

	capturer := pion.NewCapturer()

	callService := service.NewCallService(calls, history)
	chatService := service.NewChatService(mem, hub)
	friendService := service.NewFriendService(mem, mem)

	jwt := handler.NewJWT(cfg.JWTSecret)
	h := handler.NewHandler(chatService, callService, friendService, calls, mem, capturer, hub, jwt)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("Server exited")
}
