package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/HatiCode/escolta/cmd/forecaster/config"
	"github.com/HatiCode/escolta/pkg/adapters"
	"github.com/HatiCode/escolta/pkg/storage"
)

// newStore creates the snapshot store selected by cfg.Storage. It also
// returns the health check used by /healthz and a close function.
func newStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func() error, func(), error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using Redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, nil, err
		}
		health := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rs.Ping(ctx)
		}
		closer := func() {
			if err := rs.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}
		return rs, health, closer, nil
	default:
		logger.Info("using in-memory storage")
		ms := storage.NewMemoryStore()
		return ms, nil, func() {}, nil
	}
}

// buildAdapter creates the demand adapter from cfg.Adapter and the ADAPTER_* settings.
func buildAdapter(cfg *config.Config, logger *slog.Logger) (adapters.Adapter, error) {
	adapter, err := adapters.New(cfg.Adapter, cfg.AdapterConfig, cfg.StepSeconds())
	if err != nil {
		return nil, err
	}
	logger.Info("configured adapter", "adapter", adapter.Name(), "step_seconds", cfg.StepSeconds())
	return adapter, nil
}
