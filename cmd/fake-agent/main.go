// ABOUTME: Fake agent for E2E testing: consumes the Redis bus and echoes messages with markdown
// ABOUTME: Usage: fake-agent [-delay 50ms]  (REDIS_ADDR and BUS_KEY_PREFIX from the environment)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/2389/webchat-gateway/internal/agent"
	"github.com/2389/webchat-gateway/internal/bus"
)

func main() {
	delay := flag.Duration("delay", 50*time.Millisecond, "simulated thinking time before each reply")
	flag.Parse()

	if err := run(*delay); err != nil {
		log.Fatal(err)
	}
}

func run(delay time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := bus.RedisConfigFromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	b, err := bus.NewRedis(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer b.Close()

	fmt.Fprintf(os.Stderr, "consuming %sinbound on %s\n", cfg.KeyPrefix, cfg.Addr)

	s := &agent.Server{Side: b, Delay: delay, Logger: logger}
	return s.Run(ctx)
}
