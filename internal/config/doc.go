// Package config handles configuration loading for webchat-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML (or TOML, by .toml extension) file with
// environment variable expansion. Load applies defaults and validates the
// result before returning it.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WEBCHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/webchat/gateway.yaml
//  3. ~/.config/webchat/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${WEBCHAT_TOKEN}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # WebSocket + REST
//	  grpc_addr: ""               # optional gRPC health endpoint
//
//	auth:
//	  enabled: true
//	  token: "${WEBCHAT_TOKEN}"
//	  token_file: ""              # watched; rewriting it rotates the token
//
//	gateway:
//	  idle_timeout: "30m"
//	  request_timeout: "120s"
//	  channel: "web"
//	  sender_id: "web_user"
//	  allowed_origins: ["chat.example.com"]
//
//	backend:
//	  mode: "bus"                 # bus | echo
//
//	bus:
//	  driver: "memory"            # memory | redis
//	  redis_addr: "localhost:6379"
//	  key_prefix: "webchat:bus:"
//
//	push:
//	  enabled: true
//	  relay_url: "https://exp.host/--/api/v2/push/send"
//	  timeout: "10s"
//	  body_limit: 100
//	  title: "nanobot"
//	  database: "/var/lib/webchat/push.db"
//
//	logging:
//	  level: "info"               # debug, info, warn, error
//	  format: "text"              # text, json
//
// Duration values use Go's time.ParseDuration syntax.
package config
