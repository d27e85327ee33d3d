// ABOUTME: Token file watcher that rotates the gate's shared secret on change
// ABOUTME: Uses fsnotify on the parent directory so atomic renames are picked up

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// tokenReloadDelay lets bursts of write events settle before the file is re-read.
const tokenReloadDelay = 100 * time.Millisecond

// LoadTokenFile reads a token file and returns its trimmed contents.
func LoadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WatchTokenFile loads the token at path into the gate and keeps watching the
// file until ctx is cancelled. Every write or create of the file replaces the
// token. An empty file is ignored so a truncate-then-write does not briefly
// lock out remote clients.
func WatchTokenFile(ctx context.Context, path string, g *Gate, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "token-watcher", "path", path)

	token, err := LoadTokenFile(path)
	if err != nil {
		return err
	}
	if token != "" {
		g.SetToken(token)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating token watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %q: %w", dir, err)
	}

	target := filepath.Clean(path)
	reload := func() {
		token, err := LoadTokenFile(path)
		if err != nil {
			logger.Warn("token reload failed", "error", err)
			return
		}
		if token == "" {
			logger.Warn("token file empty, keeping previous token")
			return
		}
		g.SetToken(token)
	}

	go func() {
		defer w.Close()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(tokenReloadDelay, reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("token watcher failed", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
