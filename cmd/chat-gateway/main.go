// ABOUTME: Entry point for the chat-gateway service
// ABOUTME: Wires config, store, assistant gateway, tool dispatch and the janitor

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pathwise/chat-gateway/internal/assistant"
	"github.com/pathwise/chat-gateway/internal/chat"
	"github.com/pathwise/chat-gateway/internal/config"
	"github.com/pathwise/chat-gateway/internal/janitor"
	"github.com/pathwise/chat-gateway/internal/lock"
	"github.com/pathwise/chat-gateway/internal/store"
	"github.com/pathwise/chat-gateway/internal/tools"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// getConfigPath returns the path to the gateway config file.
// Priority: CHAT_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/chat-gateway/gateway.yaml
// > ~/.config/chat-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHAT_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chat-gateway", "gateway.yaml")
}

// setupLogging configures the default slog logger from config.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println("chat-gateway", version)
		return
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)
	logger := slog.Default()
	logger.Info("starting chat-gateway", "version", version, "config", configPath)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	gateway := assistant.NewOpenAIGateway(
		cfg.Assistant.APIKey,
		cfg.Assistant.AssistantID,
		cfg.Assistant.BaseURL,
	)

	dispatcher := tools.NewDispatcher(tools.Config{
		JobListingsURL:           cfg.Tools.JobListingsURL,
		CourseRecommendationsURL: cfg.Tools.CourseRecommendationsURL,
		JobLimit:                 cfg.Tools.JobLimit,
		RequestTimeout:           cfg.Tools.RequestTimeout,
	})

	opts := chat.Options{
		ProcessingStaleness: cfg.Chat.ProcessingStaleness,
		ThreadExpiration:    cfg.Chat.ThreadExpiration,
		RunCreateRetries:    cfg.Chat.RunCreateRetries,
		RunRetryDelay:       cfg.Chat.RunRetryDelay,
		RunPollTimeout:      cfg.Chat.RunPollTimeout,
		RunPollInterval:     cfg.Chat.RunPollInterval,
		LockTimeout:         cfg.Chat.LockTimeout,
		WelcomeMessage:      cfg.Chat.WelcomeMessage,
	}
	service := chat.New(st, gateway, dispatcher, lock.New(), opts, logger)

	if cfg.Janitor.Enabled {
		schedule := cfg.Janitor.Schedule
		if schedule == "" {
			schedule = "@hourly"
		}
		j := janitor.New(st, opts.ThreadExpiration, opts.ProcessingStaleness, logger)
		if err := j.Start(schedule); err != nil {
			logger.Error("janitor start failed", "error", err)
			os.Exit(1)
		}
		defer j.Stop()
	}

	addr := cfg.Server.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:    addr,
		Handler: newAPI(service, logger).routes(),
	}
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}
