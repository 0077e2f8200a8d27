package hooks

import "context"

// Hook represents a handler that can be executed when an event occurs.
type Hook interface {
	// Execute runs the hook with the given event.
	Execute(ctx context.Context, event Event) error

	// Type returns the hook type identifier.
	Type() string

	// ID returns a unique identifier for this hook instance.
	ID() string
}

// Config configures a Manager.
type Config struct {
	// Timeout is a duration string (default: 30s). NewManager only checks
	// that it parses; the Manager does not apply it, each hook carries its
	// own timeout (NewShellHook, NewWebhookHook).
	Timeout string `json:"timeout"`

	// Concurrency caps concurrent hook executions (default: 10).
	Concurrency int `json:"concurrency"`

	// StdioFormat, when non-empty, enables structured stdio output
	// ("json" or "env").
	StdioFormat string `json:"stdio_format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     "30s",
		Concurrency: 10,
		StdioFormat: "",
	}
}
