package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vibelab/chatrelay/internal/config"
	"github.com/vibelab/chatrelay/internal/llm"
	"github.com/vibelab/chatrelay/internal/logger"
	"github.com/vibelab/chatrelay/internal/relay"
	"github.com/vibelab/chatrelay/internal/server"
	"github.com/vibelab/chatrelay/internal/store"
	"github.com/vibelab/chatrelay/internal/store/dynamo"
	"github.com/vibelab/chatrelay/internal/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		logger.L.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()
	logger.L.Info("session store ready", "driver", cfg.Store.Driver)

	provider := llm.NewProvider(llm.NewClient(cfg.LLM), cfg.LLM)
	manager := relay.New(sessions, provider, cfg.Limits, cfg.HideSystemMessages)
	router := server.NewRouter(manager, cfg.Server, cfg.AllowedUserIDs)

	return router.Run(ctx)
}

// openStore selects the session store driver by name.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.SessionStore, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite", "":
		return sqlite.Open(cfg.SQLite.Path)
	case "dynamo":
		return dynamo.Open(ctx, cfg.Dynamo)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
