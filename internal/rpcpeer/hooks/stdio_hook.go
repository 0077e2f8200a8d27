package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdioHook writes event data to an output stream in a structured format.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output io.Writer
}

// NewStdioHook creates a stdio hook writing to stderr by default.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, output: os.Stderr}
}

// SetOutput overrides the output destination (default: stderr).
func (h *StdioHook) SetOutput(w io.Writer) *StdioHook {
	h.output = w
	return h
}

// Execute writes the event in the configured format.
func (h *StdioHook) Execute(ctx context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format: %s", h.id, h.format)
	}
}

func (h *StdioHook) Type() string { return "stdio" }
func (h *StdioHook) ID() string   { return h.id }

func (h *StdioHook) outputJSON(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: marshal: %w", h.id, err)
	}
	_, err = fmt.Fprintf(h.output, "FTL_EVENT: %s\n", body)
	return err
}

func (h *StdioHook) outputEnv(event Event) error {
	lines := []string{
		"# FTL Event: " + string(event.Type),
		fmt.Sprintf("FTL_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("FTL_TIMESTAMP=%d", event.Timestamp),
	}
	if event.PeerID != "" {
		lines = append(lines, "FTL_PEER_ID="+event.PeerID)
	}
	if event.StreamURI != "" {
		lines = append(lines, "FTL_STREAM_URI="+event.StreamURI)
	}
	for key, value := range event.Data {
		lines = append(lines, "FTL_"+strings.ToUpper(key)+"="+fmt.Sprintf("%v", value))
	}
	lines = append(lines, "")

	for _, line := range lines {
		if _, err := fmt.Fprintln(h.output, line); err != nil {
			return fmt.Errorf("stdio hook %s: write: %w", h.id, err)
		}
	}
	return nil
}
