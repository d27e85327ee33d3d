// ABOUTME: Gateway orchestrator that owns sessions, broker, dispatch, and push
// ABOUTME: Manages HTTP, optional gRPC health, and tailscale listener lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/webchat-gateway/internal/assets"
	"github.com/2389/webchat-gateway/internal/auth"
	"github.com/2389/webchat-gateway/internal/broker"
	"github.com/2389/webchat-gateway/internal/bus"
	"github.com/2389/webchat-gateway/internal/config"
	"github.com/2389/webchat-gateway/internal/dedupe"
	"github.com/2389/webchat-gateway/internal/dispatch"
	"github.com/2389/webchat-gateway/internal/push"
	"github.com/2389/webchat-gateway/internal/session"
	"github.com/2389/webchat-gateway/internal/store"
)

// Version is reported by /api/status.
var Version = "0.1.0"

// sessionCloseGrace bounds how long shutdown waits for clients to answer the
// close handshake before dropping their connections.
const sessionCloseGrace = 2 * time.Second

// Deps are the collaborators a Gateway is built from.
type Deps struct {
	// Responder answers messages in-process. When nil, Bus is used.
	Responder dispatch.Responder
	Bus       bus.Bus
	// Notifier receives a notification for every assistant reply. Optional.
	Notifier *push.Notifier
	// Gate authorizes requests and connections. Built from config when nil.
	Gate *auth.Gate
	// Store is closed on shutdown. Optional.
	Store store.TokenStore
}

// Gateway serves the chat WebSocket and REST API for one process.
type Gateway struct {
	config     *config.Config
	gate       *auth.Gate
	sessions   *session.Registry
	recentIDs  *dedupe.Cache
	broker     *broker.Broker
	dispatcher *dispatch.Dispatcher
	notifier   *push.Notifier
	bus        bus.Bus
	store      store.TokenStore

	httpServer   *http.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger

	startedAt time.Time
	draining  atomic.Bool

	// handlers counts running /ws/chat handlers. handlersMu orders Add
	// against the draining flag so no Add happens after shutdown waits.
	handlersMu sync.Mutex
	handlers   sync.WaitGroup

	// baseCtx is cancelled on shutdown; connection handlers derive from it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	bg         sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Gateway. The outbound reply subscription starts immediately.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Responder == nil && deps.Bus == nil {
		return nil, errors.New("gateway needs a responder or a bus")
	}

	gate := deps.Gate
	if gate == nil {
		gate = auth.NewGate(auth.Policy{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token}, nil, logger)
	}

	recentIDs := session.NewRecentIDs()
	ids := session.NewIDGenerator(recentIDs)
	brk := broker.New(logger)

	baseCtx, cancel := context.WithCancel(context.Background())

	g := &Gateway{
		config:    cfg,
		gate:      gate,
		sessions:  session.NewRegistry(ids, logger),
		recentIDs: recentIDs,
		broker:    brk,
		dispatcher: &dispatch.Dispatcher{
			Responder:      deps.Responder,
			Bus:            deps.Bus,
			Broker:         brk,
			Channel:        cfg.Gateway.Channel,
			SenderID:       cfg.Gateway.SenderID,
			RequestTimeout: cfg.Gateway.RequestTimeout,
			Issued:         ids.Issued,
			Logger:         logger.With("component", "dispatch"),
		},
		notifier:   deps.Notifier,
		bus:        deps.Bus,
		store:      deps.Store,
		logger:     logger.With("component", "gateway"),
		startedAt:  time.Now(),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.GRPCAddr != "" {
		g.grpcServer, g.healthServer = newHealthServer()
	}

	g.bg.Add(1)
	go func() {
		defer g.bg.Done()
		if err := g.dispatcher.Run(baseCtx); err != nil {
			g.logger.Error("outbound subscription ended", "error", err)
		}
	}()

	return g, nil
}

// newHealthServer creates a gRPC server exposing only the standard health service.
func newHealthServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// routes builds the HTTP mux.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	requireAuth := auth.Middleware(g.gate)

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("GET /ws/chat", g.handleChat)

	mux.Handle("GET /api/status", requireAuth(http.HandlerFunc(g.handleStatus)))
	mux.Handle("GET /api/config", requireAuth(http.HandlerFunc(g.handleConfig)))
	mux.Handle("POST /api/push/register", requireAuth(http.HandlerFunc(g.handlePushRegister)))
	mux.Handle("POST /api/push/unregister", requireAuth(http.HandlerFunc(g.handlePushUnregister)))

	mux.Handle("GET /static/", http.StripPrefix("/static/", assets.FileServer()))
	mux.Handle("GET /{$}", assets.IndexHandler())
	return mux
}

// Handler returns the HTTP handler, for embedding or tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Sessions returns the live session registry.
func (g *Gateway) Sessions() *session.Registry {
	return g.sessions
}

// Broker returns the correlation broker.
func (g *Gateway) Broker() *broker.Broker {
	return g.broker
}

// setupTCPListeners creates the HTTP listener and, when configured, the gRPC one.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning an error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		select {
		case additionalErr := <-errCh:
			g.logger.Error("additional server error", "error", additionalErr)
		default:
		}
		return err
	}
}

// Run starts the servers and blocks until ctx is cancelled or a server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServers(grpcLn, httpLn)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "webchat-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and listens there instead of on TCP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	httpLn, err = g.createTailscaleHTTPListener(tsCfg)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, err
	}

	if g.grpcServer != nil {
		grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
		if err != nil {
			_ = httpLn.Close()
			_ = g.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener picks funnel, HTTPS, or plain HTTP on the tailnet.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	if g.grpcServer == nil {
		return
	}
	g.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes every live session with 1001, stops the servers, and
// releases owned resources. Safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

// trackHandler registers a running connection handler. Returns false once
// shutdown has begun.
func (g *Gateway) trackHandler() bool {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	if g.draining.Load() {
		return false
	}
	g.handlers.Add(1)
	return true
}

// waitHandlers waits for every connection handler to return, bounded by ctx.
func (g *Gateway) waitHandlers(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "sessions", g.sessions.Count(), "pending", g.broker.Pending())
	g.handlersMu.Lock()
	g.draining.Store(true)
	g.handlersMu.Unlock()

	var errs []error

	closeCtx, cancelClose := context.WithTimeout(ctx, sessionCloseGrace)
	g.sessions.CloseAll(closeCtx, int(websocket.StatusGoingAway), "server shutdown")
	cancelClose()
	g.broker.Close()
	g.cancelBase()

	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.shutdownGRPCServer(ctx)

	errs = appendCloseError(errs, "waiting for connections", g.waitHandlers(ctx))
	g.bg.Wait()

	if g.bus != nil {
		errs = appendCloseError(errs, "bus close", g.bus.Close())
	}
	if g.notifier != nil {
		g.notifier.Wait()
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	g.recentIDs.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
