// ABOUTME: Interactive config generator for webchat-gateway
// ABOUTME: Prompts for listener, auth, backend, and push settings and writes YAML

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

func runInit() error {
	reader := bufio.NewReader(os.Stdin)
	green := color.New(color.FgGreen)

	fmt.Println("webchat-gateway configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server ---")
	httpAddr := prompt(reader, "HTTP address", "0.0.0.0:8080")
	grpcAddr := prompt(reader, "gRPC health address (empty to disable)", "")

	fmt.Println("\n--- Auth ---")
	authEnabled := yes(prompt(reader, "Require a token for remote clients?", "yes"))
	var token string
	if authEnabled {
		generated, err := generateToken()
		if err != nil {
			return err
		}
		token = prompt(reader, "Shared token", generated)
	}

	fmt.Println("\n--- Backend ---")
	backendMode := prompt(reader, "Backend (bus/echo)", "bus")
	busDriver := "memory"
	redisAddr := ""
	if backendMode == "bus" {
		busDriver = prompt(reader, "Bus driver (memory/redis)", "memory")
		if busDriver == "redis" {
			redisAddr = prompt(reader, "Redis address", "localhost:6379")
		}
	}

	fmt.Println("\n--- Push notifications ---")
	pushEnabled := yes(prompt(reader, "Enable push notifications?", "no"))
	pushDB := ""
	if pushEnabled {
		pushDB = prompt(reader, "Push token database", filepath.Join(getDataPath(), "push.db"))
	}

	fmt.Println("\n--- Tailscale ---")
	tailscaleEnabled := yes(prompt(reader, "Enable Tailscale?", "no"))
	var tsHostname string
	var tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "webchat")
		tsFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# webchat-gateway configuration\n")
	cfg.WriteString("# Generated by webchat-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", httpAddr)
	if grpcAddr != "" {
		fmt.Fprintf(&cfg, "  grpc_addr: %q\n", grpcAddr)
	}

	cfg.WriteString("\nauth:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", authEnabled)
	if token != "" {
		fmt.Fprintf(&cfg, "  token: %q\n", token)
	}

	cfg.WriteString("\ngateway:\n")
	cfg.WriteString("  idle_timeout: \"30m\"\n")
	cfg.WriteString("  request_timeout: \"120s\"\n")

	cfg.WriteString("\nbackend:\n")
	fmt.Fprintf(&cfg, "  mode: %q\n", backendMode)

	cfg.WriteString("\nbus:\n")
	fmt.Fprintf(&cfg, "  driver: %q\n", busDriver)
	if redisAddr != "" {
		fmt.Fprintf(&cfg, "  redis_addr: %q\n", redisAddr)
	}

	cfg.WriteString("\npush:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", pushEnabled)
	if pushDB != "" {
		fmt.Fprintf(&cfg, "  database: %q\n", pushDB)
	}

	cfg.WriteString("\ntailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", tailscaleEnabled)
	if tailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: %q\n", tsHostname)
		fmt.Fprintf(&cfg, "  funnel: %t\n", tsFunnel)
	}

	cfg.WriteString("\nlogging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the shared token.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Println()
	green.Printf("  ✓ Config written to %s\n", outputFile)
	if token != "" {
		fmt.Printf("  Connect with: ws://%s/ws/chat?token=%s\n", httpAddr, token)
	}
	fmt.Println("\nTo start the server:")
	fmt.Println("  webchat-gateway serve")

	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
