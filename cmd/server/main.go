package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"parley/internal/config"
	"parley/internal/otelutil"
	"parley/internal/store"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := otelutil.Init(); err != nil {
		logger.Debug("tracing disabled", "reason", err)
	}
	defer otelutil.Flush()

	// collaborator directories and the durable log are the only fatal
	// startup dependencies
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Error("create upload dir", "dir", cfg.UploadDir, "err", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.DataDir, logger)
	if err != nil {
		logger.Error("open message store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	PingInterval = cfg.PingInterval

	s := NewServer(cfg, logger, st)
	s.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("forced shutdown", "err", err)
		}
	}()

	logger.Info("parley server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
