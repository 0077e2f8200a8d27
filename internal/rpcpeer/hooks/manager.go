package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager manages hook registration and execution for peer/stream events.
type Manager struct {
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	mu        sync.RWMutex
	pool      *executionPool
	logger    *slog.Logger
	config    Config
}

// NewManager creates a new hook manager.
func NewManager(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := time.ParseDuration(config.Timeout); err != nil {
		logger.Warn("invalid hook timeout", "timeout", config.Timeout, "error", err)
	}

	m := &Manager{
		hooks:  make(map[EventType][]Hook),
		logger: logger,
		config: config,
		pool:   newExecutionPool(config.Concurrency, logger),
	}

	if config.StdioFormat != "" {
		_ = m.EnableStdioOutput(config.StdioFormat)
	}

	return m
}

// RegisterHook registers a hook for the given event type.
func (m *Manager) RegisterHook(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("cannot register nil hook")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks[eventType] = append(m.hooks[eventType], hook)
	m.logger.Info("hook registered", "event_type", eventType, "hook_type", hook.Type(), "hook_id", hook.ID())
	return nil
}

// UnregisterHook removes a hook by ID from the given event type.
func (m *Manager) UnregisterHook(eventType EventType, hookID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.hooks[eventType]
	for i, h := range list {
		if h.ID() == hookID {
			m.hooks[eventType] = append(list[:i], list[i+1:]...)
			m.logger.Info("hook unregistered", "event_type", eventType, "hook_id", hookID)
			return true
		}
	}
	return false
}

// Fire executes every registered hook for event, asynchronously, on the
// manager's bounded execution pool.
func (m *Manager) Fire(ctx context.Context, event Event) {
	if m == nil {
		return
	}

	m.mu.RLock()
	list := make([]Hook, len(m.hooks[event.Type]))
	copy(list, m.hooks[event.Type])
	m.mu.RUnlock()

	if m.stdioHook != nil {
		list = append(list, m.stdioHook)
	}

	if len(list) == 0 {
		return
	}

	m.logger.Debug("firing event", "event_type", event.Type, "hook_count", len(list), "event", event.String())
	for _, h := range list {
		m.pool.execute(ctx, h, event)
	}
}

// EnableStdioOutput enables structured event output to stderr.
func (m *Manager) EnableStdioOutput(format string) error {
	if format != "json" && format != "env" {
		return fmt.Errorf("unsupported stdio format: %s", format)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stdioHook = NewStdioHook("stdio", format)
	m.logger.Info("stdio output enabled", "format", format)
	return nil
}

// DisableStdioOutput disables structured output.
func (m *Manager) DisableStdioOutput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stdioHook = nil
	m.logger.Info("stdio output disabled")
}

// Stats reports counts of registered hooks, keyed by event type.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[string]int)
	total := 0
	for eventType, list := range m.hooks {
		byType[string(eventType)] = len(list)
		total += len(list)
	}

	return map[string]interface{}{
		"event_types":   len(m.hooks),
		"total_hooks":   total,
		"hooks_by_type": byType,
		"stdio_enabled": m.stdioHook != nil,
		"pool_size":     m.pool.size,
		"pool_active":   m.pool.active,
	}
}

// Close shuts down the manager, waiting for in-flight hook executions.
func (m *Manager) Close() error {
	if m.pool != nil {
		m.pool.close()
	}
	m.logger.Info("hook manager closed")
	return nil
}

// executionPool bounds concurrent hook execution behind a buffered
// semaphore channel, same shape as the teacher's.
type executionPool struct {
	workers chan struct{}
	size    int
	active  int
	mu      sync.Mutex
	logger  *slog.Logger
}

func newExecutionPool(size int, logger *slog.Logger) *executionPool {
	if size <= 0 {
		size = 10
	}
	return &executionPool{
		workers: make(chan struct{}, size),
		size:    size,
		logger:  logger,
	}
}

func (ep *executionPool) execute(ctx context.Context, hook Hook, event Event) {
	go func() {
		ep.workers <- struct{}{}
		defer func() { <-ep.workers }()

		ep.mu.Lock()
		ep.active++
		ep.mu.Unlock()
		defer func() {
			ep.mu.Lock()
			ep.active--
			ep.mu.Unlock()
		}()

		start := time.Now()
		err := hook.Execute(ctx, event)
		duration := time.Since(start)

		if err != nil {
			ep.logger.Error("hook execution failed",
				"hook_type", hook.Type(), "hook_id", hook.ID(),
				"event_type", event.Type, "duration_ms", duration.Milliseconds(), "error", err)
			return
		}
		ep.logger.Debug("hook executed",
			"hook_type", hook.Type(), "hook_id", hook.ID(),
			"event_type", event.Type, "duration_ms", duration.Milliseconds())
	}()
}

func (ep *executionPool) close() {
	for i := 0; i < cap(ep.workers); i++ {
		ep.workers <- struct{}{}
	}
}
