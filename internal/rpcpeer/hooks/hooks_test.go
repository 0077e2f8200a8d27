package hooks

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestEvent(t *testing.T) {
	event := NewEvent(EventPeerConnect).
		WithPeerID("peer-1").
		WithStreamURI("ftl://host/a").
		WithData("version", 5)

	if event.Type != EventPeerConnect {
		t.Errorf("expected event type %s, got %s", EventPeerConnect, event.Type)
	}
	if event.PeerID != "peer-1" {
		t.Errorf("expected peer id 'peer-1', got %s", event.PeerID)
	}
	if event.Data["version"] != 5 {
		t.Errorf("expected version 5, got %v", event.Data["version"])
	}
	if got := event.String(); got != "peer_connect:ftl://host/a" {
		t.Errorf("unexpected String(): %s", got)
	}
}

func TestShellHook(t *testing.T) {
	hook := NewShellHook("test-hook", "/bin/echo", 10*time.Second)

	if hook.Type() != "shell" {
		t.Errorf("expected type 'shell', got %s", hook.Type())
	}
	if hook.ID() != "test-hook" {
		t.Errorf("expected id 'test-hook', got %s", hook.ID())
	}

	env := hook.buildEnvironment(*NewEvent(EventStreamBegin).WithStreamURI("ftl://host/a"))
	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "FTL_STREAM_URI=") {
			found = true
		}
	}
	if !found {
		t.Error("expected FTL_STREAM_URI in shell environment")
	}
}

func TestManager_RegisterFireUnregister(t *testing.T) {
	manager := NewManager(DefaultConfig(), nil)
	defer manager.Close()

	hook := NewShellHook("test", "/bin/true", 10*time.Second)
	if err := manager.RegisterHook(EventPeerConnect, hook); err != nil {
		t.Fatalf("register: %v", err)
	}

	stats := manager.Stats()
	if stats["total_hooks"] != 1 {
		t.Errorf("expected 1 total hook, got %v", stats["total_hooks"])
	}

	if !manager.UnregisterHook(EventPeerConnect, "test") {
		t.Error("expected unregister to succeed")
	}

	// Should not crash with no hooks registered.
	manager.Fire(context.Background(), *NewEvent(EventPeerConnect))
}

func TestStdioHook_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	hook := NewStdioHook("stdio-test", "json")
	hook.SetOutput(&buf)

	if err := hook.Execute(context.Background(), *NewEvent(EventPeerDisconnect).WithPeerID("p1")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "peer_disconnect") {
		t.Errorf("expected output to mention peer_disconnect, got %s", buf.String())
	}
}

func TestWebhookHook_Configuration(t *testing.T) {
	hook := NewWebhookHook("webhook-test", "https://example.com/webhook", 30*time.Second)

	if hook.Type() != "webhook" {
		t.Errorf("expected type 'webhook', got %s", hook.Type())
	}

	hook.AddHeader("Authorization", "Bearer token")
	if hook.headers["Authorization"] != "Bearer token" {
		t.Errorf("expected Authorization header set, got %s", hook.headers["Authorization"])
	}
}
