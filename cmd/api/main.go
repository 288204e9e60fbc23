package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/bootstrap"
	"github.com/zhouzirui/spatial-agent/backend/internal/config"
	"github.com/zhouzirui/spatial-agent/backend/internal/handler"
	"github.com/zhouzirui/spatial-agent/backend/internal/handler/speech"
	"github.com/zhouzirui/spatial-agent/backend/internal/logger"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/conversation"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/pipeline"
	"github.com/zhouzirui/spatial-agent/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetLogger(log)

	if envErr != nil {
		log.Debug("no .env file loaded, using process environment only", zap.Error(envErr))
	}

	adapters, err := bootstrap.BuildAdapters(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize adapters", zap.Error(err))
	}

	orchestrator := pipeline.NewOrchestrator(adapters.Transcriber, adapters.Generator, adapters.Synthesizer, pipeline.Options{
		Voice:        cfg.Session.Voice,
		StageTimeout: cfg.Session.StageTimeout,
		Observer:     pipeline.NewLogObserver(log),
		Logger:       log,
	})

	sessions := session.NewRegistry(cfg.Session.SystemPrompt, conversation.Options{
		Cap:       cfg.Session.HistoryCap,
		PinSystem: cfg.Session.PinSystem,
	}, log)

	wsHandler := speech.NewWebSocketHandler(orchestrator, sessions, speech.WebSocketOptions{
		PingInterval: cfg.Server.PingInterval,
		ReadDeadline: cfg.Server.ReadDeadline,
		WriteTimeout: cfg.Server.WriteTimeout,
		QueueSize:    cfg.Session.QueueSize,
	}, log)
	speechHandler := speech.New(adapters.Transcriber, adapters.Synthesizer, cfg.Session.Voice, log)

	router := handler.NewRouter(wsHandler, speechHandler, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	srv.RegisterOnShutdown(sessions.CloseAll)

	log.Info("Spatial Agent backend listening", zap.String("addr", cfg.Server.Addr))
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server stopped", zap.Int("open_sessions", sessions.Len()))
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
