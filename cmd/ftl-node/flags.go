package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cliConfig holds every flag the node accepts, parsed and validated before
// the runtime is constructed.
type cliConfig struct {
	listenTCP   string
	listenWS    string
	wsPath      string
	connectTo   []string
	logLevel    string
	maxPeers    int
	showVersion bool

	hookScripts     []string
	hookWebhooks    []string
	hookStdioFormat string
	hookTimeout     string
	hookConcurrency int
}

// stringSliceFlag collects repeated occurrences of a flag into a slice,
// e.g. -connect host1:7654 -connect host2:7654.
type stringSliceFlag struct{ values *[]string }

func (s stringSliceFlag) String() string {
	if s.values == nil {
		return ""
	}
	return strings.Join(*s.values, ",")
}

func (s stringSliceFlag) Set(v string) error {
	*s.values = append(*s.values, v)
	return nil
}

// validEventTypes lists the hook event types a -hook-script/-hook-webhook
// assignment may target, mirrored from internal/rpcpeer/hooks.EventType.
var validEventTypes = map[string]bool{
	"peer_connect":    true,
	"peer_disconnect": true,
	"peer_error":      true,
	"handshake_done":  true,
	"stream_begin":    true,
	"stream_end":      true,
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("ftl-node", flag.ContinueOnError)
	cfg := &cliConfig{}

	fs.StringVar(&cfg.listenTCP, "listen", "", "TCP address to accept peer connections on, e.g. :7654")
	fs.StringVar(&cfg.listenWS, "listen-ws", "", "WebSocket address to accept peer connections on")
	fs.StringVar(&cfg.wsPath, "ws-path", "/", "HTTP path the WebSocket listener upgrades on")
	fs.Var(stringSliceFlag{&cfg.connectTo}, "connect", "peer URI to dial at startup (repeatable), e.g. tcp://host:7654")
	fs.StringVar(&cfg.logLevel, "log.level", "info", "log level: debug, info, warn, error")
	fs.IntVar(&cfg.maxPeers, "max-peers", 10, "size of the dense peer array")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	fs.Var(stringSliceFlag{&cfg.hookScripts}, "hook-script", "event_type=path/to/script assignment (repeatable)")
	fs.Var(stringSliceFlag{&cfg.hookWebhooks}, "hook-webhook", "event_type=https://... assignment (repeatable)")
	fs.StringVar(&cfg.hookStdioFormat, "hook-stdio-format", "", "emit events to stderr as 'json' or 'env'")
	fs.StringVar(&cfg.hookTimeout, "hook-timeout", "30s", "timeout for a single hook execution")
	fs.IntVar(&cfg.hookConcurrency, "hook-concurrency", 10, "max concurrent hook executions")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}

	if cfg.listenTCP == "" && cfg.listenWS == "" && len(cfg.connectTo) == 0 {
		return nil, fmt.Errorf("at least one of -listen, -listen-ws, or -connect is required")
	}
	if cfg.maxPeers <= 0 {
		return nil, fmt.Errorf("-max-peers must be positive, got %d", cfg.maxPeers)
	}
	switch strings.ToLower(cfg.logLevel) {
	case "debug", "info", "warn", "warning", "error", "err":
	default:
		return nil, fmt.Errorf("invalid -log.level %q", cfg.logLevel)
	}
	if _, err := time.ParseDuration(cfg.hookTimeout); err != nil {
		return nil, fmt.Errorf("invalid -hook-timeout %q: %w", cfg.hookTimeout, err)
	}
	if cfg.hookConcurrency <= 0 {
		return nil, fmt.Errorf("-hook-concurrency must be positive, got %d", cfg.hookConcurrency)
	}
	if err := validateHookAssignments(cfg.hookScripts); err != nil {
		return nil, err
	}
	if err := validateHookAssignments(cfg.hookWebhooks); err != nil {
		return nil, err
	}
	if cfg.hookStdioFormat != "" && cfg.hookStdioFormat != "json" && cfg.hookStdioFormat != "env" {
		return nil, fmt.Errorf("invalid -hook-stdio-format %q: must be json or env", cfg.hookStdioFormat)
	}

	return cfg, nil
}

func validateHookAssignments(assignments []string) error {
	for _, a := range assignments {
		if err := validateHookAssignment(a); err != nil {
			return err
		}
	}
	return nil
}

// validateHookAssignment checks that a hook flag value has the form
// event_type=target and that event_type is one this build recognizes.
func validateHookAssignment(assignment string) error {
	parts := strings.SplitN(assignment, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("hook assignment %q must have the form event_type=target", assignment)
	}
	if !validEventTypes[parts[0]] {
		return fmt.Errorf("hook assignment %q: unknown event type %q", assignment, parts[0])
	}
	return nil
}

// parsePort extracts the numeric port from a "host:port" address.
func parsePort(addr string) (int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return 0, fmt.Errorf("address %q has no port", addr)
	}
	return strconv.Atoi(addr[idx+1:])
}
