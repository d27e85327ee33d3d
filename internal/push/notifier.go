// ABOUTME: Push fan-out to every registered device through an Expo-compatible relay
// ABOUTME: Token set mirrored to a TokenStore, deliveries detached and best-effort

package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/webchat-gateway/internal/store"
)

// Config controls relay delivery.
type Config struct {
	RelayURL  string
	Timeout   time.Duration
	BodyLimit int
	Title     string
}

// message is one entry of the relay request array.
type message struct {
	To    string `json:"to"`
	Sound string `json:"sound"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ticket is one entry of the relay response.
type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type relayResponse struct {
	Data []ticket `json:"data"`
}

// errDeviceNotRegistered is reported by the relay for tokens it no longer accepts.
var errDeviceNotRegistered = errors.New("device not registered")

// Notifier holds the registered push tokens and sends notifications to them.
type Notifier struct {
	mu     sync.RWMutex
	tokens map[string]struct{}

	cfg    Config
	store  store.TokenStore
	client *http.Client
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewNotifier creates a notifier. A nil store keeps tokens in memory only.
func NewNotifier(cfg Config, st store.TokenStore, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	return &Notifier{
		tokens: make(map[string]struct{}),
		cfg:    cfg,
		store:  st,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "push"),
	}
}

// Load restores previously registered tokens from the store.
func (n *Notifier) Load(ctx context.Context) error {
	stored, err := n.store.ListPushTokens(ctx)
	if err != nil {
		return fmt.Errorf("loading push tokens: %w", err)
	}
	n.mu.Lock()
	for _, t := range stored {
		n.tokens[t.Token] = struct{}{}
	}
	count := len(n.tokens)
	n.mu.Unlock()

	n.logger.Info("push tokens loaded", "count", count)
	return nil
}

// Register adds token to the set. Registering a known token is a no-op.
func (n *Notifier) Register(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}
	if err := n.store.AddPushToken(ctx, token); err != nil {
		return fmt.Errorf("persisting push token: %w", err)
	}

	n.mu.Lock()
	n.tokens[token] = struct{}{}
	count := len(n.tokens)
	n.mu.Unlock()

	n.logger.Info("push token registered", "count", count)
	return nil
}

// Unregister removes token from the set. Unknown tokens are ignored.
func (n *Notifier) Unregister(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}
	if err := n.store.RemovePushToken(ctx, token); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("removing push token: %w", err)
	}

	n.mu.Lock()
	delete(n.tokens, token)
	count := len(n.tokens)
	n.mu.Unlock()

	n.logger.Info("push token unregistered", "count", count)
	return nil
}

// Tokens returns a sorted snapshot of the registered tokens.
func (n *Notifier) Tokens() []string {
	n.mu.RLock()
	out := make([]string, 0, len(n.tokens))
	for t := range n.tokens {
		out = append(out, t)
	}
	n.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Count returns the number of registered tokens.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.tokens)
}

// Notify sends title and a plain-text rendering of body to every registered
// token in the background. It never blocks on the network and never fails.
// An empty title uses the configured default.
func (n *Notifier) Notify(title, body string) {
	tokens := n.Tokens()
	if len(tokens) == 0 {
		return
	}
	if title == "" {
		title = n.cfg.Title
	}
	text := Body(body, n.cfg.BodyLimit)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(tokens, title, text)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// deliver sends to every token concurrently; one failure never affects another.
func (n *Notifier) deliver(tokens []string, title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()

	var g errgroup.Group
	for _, token := range tokens {
		g.Go(func() error {
			err := n.send(ctx, token, title, body)
			if errors.Is(err, errDeviceNotRegistered) {
				n.logger.Info("relay rejected token, unregistering", "error", err)
				if uerr := n.Unregister(context.Background(), token); uerr != nil {
					n.logger.Warn("unregistering rejected token", "error", uerr)
				}
				return err
			}
			if err != nil {
				n.logger.Warn("push delivery failed", "error", err)
			}
			return err
		})
	}

	if err := g.Wait(); err == nil {
		n.logger.Debug("push delivered", "tokens", len(tokens))
	}
}

func (n *Notifier) send(ctx context.Context, token, title, body string) error {
	payload, err := json.Marshal([]message{{To: token, Sound: "default", Title: title, Body: body}})
	if err != nil {
		return fmt.Errorf("encoding push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.RelayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to push relay: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("reading push relay response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push relay returned %d", resp.StatusCode)
	}

	var parsed relayResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		// Relays that do not return tickets are treated as accepted.
		return nil
	}
	for _, t := range parsed.Data {
		if t.Status != "error" {
			continue
		}
		if t.Details.Error == "DeviceNotRegistered" {
			return fmt.Errorf("%w: %s", errDeviceNotRegistered, t.Message)
		}
		return fmt.Errorf("push relay rejected message: %s", t.Message)
	}
	return nil
}
