package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellHook runs a command, passing event fields as FTL_-prefixed
// environment variables.
type ShellHook struct {
	id       string
	command  string
	args     []string
	env      []string
	passJSON bool
	timeout  time.Duration
}

// NewShellHook creates a shell hook that runs scriptPath under /bin/bash.
func NewShellHook(id, scriptPath string, timeout time.Duration) *ShellHook {
	return &ShellHook{
		id:      id,
		command: "/bin/bash",
		args:    []string{scriptPath},
		timeout: timeout,
	}
}

// SetPassJSON enables writing the event as JSON to the command's stdin.
func (h *ShellHook) SetPassJSON(passJSON bool) *ShellHook {
	h.passJSON = passJSON
	return h
}

// Execute runs the configured command with the event in its environment.
func (h *ShellHook) Execute(ctx context.Context, event Event) error {
	execCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, h.command, h.args...)
	cmd.Env = append(cmd.Env, h.buildEnvironment(event)...)

	if h.passJSON {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("shell hook %s: stdin pipe: %w", h.id, err)
		}
		go func() {
			defer stdin.Close()
			_ = json.NewEncoder(stdin).Encode(event)
		}()
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s: execution failed: %w", h.id, err)
	}
	return nil
}

func (h *ShellHook) Type() string { return "shell" }
func (h *ShellHook) ID() string   { return h.id }

func (h *ShellHook) buildEnvironment(event Event) []string {
	env := append([]string{}, h.env...)
	env = append(env, "FTL_EVENT_TYPE="+string(event.Type))
	env = append(env, fmt.Sprintf("FTL_TIMESTAMP=%d", event.Timestamp))

	if event.PeerID != "" {
		env = append(env, "FTL_PEER_ID="+event.PeerID)
	}
	if event.StreamURI != "" {
		env = append(env, "FTL_STREAM_URI="+event.StreamURI)
	}
	for key, value := range event.Data {
		env = append(env, "FTL_"+strings.ToUpper(key)+"="+fmt.Sprintf("%v", value))
	}
	return env
}
