// ABOUTME: Builds gateway collaborators from configuration
// ABOUTME: Selects backend and bus, opens the push token store, and wires token rotation

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/webchat-gateway/internal/agent"
	"github.com/2389/webchat-gateway/internal/auth"
	"github.com/2389/webchat-gateway/internal/bus"
	"github.com/2389/webchat-gateway/internal/config"
	"github.com/2389/webchat-gateway/internal/gateway"
	"github.com/2389/webchat-gateway/internal/push"
	"github.com/2389/webchat-gateway/internal/store"
)

// buildDeps creates everything the gateway needs. The returned cleanup stops
// helpers that the gateway does not own; the gateway closes the bus and store.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gateway.Deps, func(), error) {
	var deps gateway.Deps
	helpers, stop := context.WithCancel(ctx)

	deps.Gate = auth.NewGate(auth.Policy{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token}, nil, logger)
	if cfg.Auth.TokenFile != "" {
		if err := auth.WatchTokenFile(helpers, cfg.Auth.TokenFile, deps.Gate, logger); err != nil {
			stop()
			return deps, nil, fmt.Errorf("loading token file: %w", err)
		}
	}

	switch cfg.Backend.Mode {
	case config.BackendEcho:
		deps.Responder = agent.Responder()
	default:
		b, err := openBus(ctx, cfg, logger)
		if err != nil {
			stop()
			return deps, nil, err
		}
		deps.Bus = b

		// A memory bus is only reachable in-process, so the echo agent answers on it.
		if mem, ok := b.(*bus.Memory); ok {
			logger.Info("memory bus selected, starting in-process echo agent")
			go func() {
				if err := agent.Serve(helpers, mem, logger); err != nil {
					logger.Error("in-process agent stopped", "error", err)
				}
			}()
		}
	}

	if cfg.Push.Enabled {
		st, err := openTokenStore(cfg.Push)
		if err != nil {
			stop()
			if deps.Bus != nil {
				_ = deps.Bus.Close()
			}
			return deps, nil, err
		}
		deps.Store = st

		n := push.NewNotifier(push.Config{
			RelayURL:  cfg.Push.RelayURL,
			Timeout:   cfg.Push.Timeout,
			BodyLimit: cfg.Push.BodyLimit,
			Title:     cfg.Push.Title,
		}, st, logger)
		if err := n.Load(ctx); err != nil {
			logger.Warn("starting without stored push tokens", "error", err)
		}
		deps.Notifier = n
	}

	return deps, stop, nil
}

func openBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (bus.Bus, error) {
	switch cfg.Bus.Driver {
	case config.BusRedis:
		b, err := bus.NewRedis(ctx, bus.RedisConfig{Addr: cfg.Bus.RedisAddr, KeyPrefix: cfg.Bus.KeyPrefix}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis bus: %w", err)
		}
		return b, nil
	default:
		return bus.NewMemory(), nil
	}
}

func openTokenStore(cfg config.PushConfig) (store.TokenStore, error) {
	if cfg.Database == "" {
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewSQLiteStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening push token database: %w", err)
	}
	return s, nil
}
