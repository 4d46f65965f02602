package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/agentflow/pkg/agent"
	"github.com/randalmurphal/agentflow/pkg/config"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
	flowerrors "github.com/randalmurphal/agentflow/pkg/flowgraph/errors"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/llm"
)

// app is everything a command needs, built from settings.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	engine   *agent.Engine
	closers  []func(context.Context) error
}

// newApp loads settings for cmd and builds the engine they describe.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		settings.Log.Level = lvl
	}

	logger, err := newLogger(os.Stderr, settings.Log.Level, settings.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{settings: settings, logger: logger}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := setupTelemetry(ctx, settings.Telemetry)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	store, locker, err := openStore(settings.Store)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	opts := agent.OptionsFromSettings(settings, newLLMClient(settings.LLM))
	opts = append(opts, agent.WithLogger(logger))
	if locker != nil {
		opts = append(opts, agent.WithLocker(locker))
	}
	a.engine, err = agent.New(store, opts...)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore builds the configured checkpoint backend. The Redis backend
// also returns a Redis locker so processes sharing it serialize per
// session; the others use the engine's in-process locker.
func openStore(s config.StoreSettings) (checkpoint.Store, checkpoint.Locker, error) {
	switch s.Backend {
	case config.BackendMemory:
		return checkpoint.NewMemoryStore(), nil, nil
	case config.BackendSQLite:
		store, err := checkpoint.NewSQLiteStore(s.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil, nil
	case config.BackendRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		store := checkpoint.NewRedisStoreFromClient(client,
			checkpoint.WithPrefix(s.Redis.Prefix),
			checkpoint.WithTTL(s.Redis.TTL))
		return store, checkpoint.NewRedisLocker(client, s.Redis.Prefix, s.Redis.LockTTL), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}

// newLLMClient returns nil when no model is configured.
func newLLMClient(s config.LLMSettings) llm.Client {
	if !s.Enabled() {
		return nil
	}
	retry := flowerrors.DefaultRetry
	retry.MaxAttempts = s.MaxAttempts
	return llm.NewOpenAIClient(
		llm.WithAPIKey(s.APIKey),
		llm.WithBaseURL(s.BaseURL),
		llm.WithModel(s.Model),
		llm.WithMaxTokens(s.MaxTokens),
		llm.WithTemperature(s.Temperature),
		llm.WithRetry(retry),
	)
}
