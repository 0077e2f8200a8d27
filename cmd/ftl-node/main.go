// Command ftl-node runs a standalone FTL universe: it listens for and dials
// peer connections and fires lifecycle hooks (shell, webhook, stdio) on
// every connect/disconnect/error the way a production FTL node would.
// Grounded on the teacher's cmd/rtmp-server entrypoint for flag parsing and
// the signal.NotifyContext-driven graceful shutdown shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alxayo/ftl-go/internal/logger"
	"github.com/alxayo/ftl-go/internal/rpcpeer"
	"github.com/alxayo/ftl-go/internal/rpcpeer/hooks"
	"github.com/alxayo/ftl-go/internal/universe"
)

var version = "dev"

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "ftl-node:", err)
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println("ftl-node", version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "ftl-node:", err)
		os.Exit(2)
	}
	log := logger.Logger().With("component", "ftl-node")

	hookMgr, err := buildHookManager(cfg)
	if err != nil {
		log.Error("failed to configure hooks", "error", err)
		os.Exit(1)
	}
	defer hookMgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := universe.New(universe.Config{MaxPeers: cfg.maxPeers})
	u.OnNewPeer(func(p *rpcpeer.Peer) { hooks.AttachPeer(ctx, hookMgr, p) })
	u.Start(ctx)

	if cfg.listenTCP != "" {
		ln, err := u.Listen("tcp", cfg.listenTCP, "")
		if err != nil {
			log.Error("failed to listen", "scheme", "tcp", "addr", cfg.listenTCP, "error", err)
			os.Exit(1)
		}
		log.Info("listening", "scheme", "tcp", "addr", ln.Addr().String())
	}
	if cfg.listenWS != "" {
		ln, err := u.Listen("ws", cfg.listenWS, cfg.wsPath)
		if err != nil {
			log.Error("failed to listen", "scheme", "ws", "addr", cfg.listenWS, "error", err)
			os.Exit(1)
		}
		log.Info("listening", "scheme", "ws", "addr", ln.Addr().String())
	}
	for _, target := range cfg.connectTo {
		target := target
		go func() {
			if _, err := u.Connect(ctx, target); err != nil {
				log.Warn("failed to connect", "uri", target, "error", err)
			} else {
				log.Info("connected", "uri", target)
			}
		}()
	}

	log.Info("ftl-node started", "version", version)
	<-ctx.Done()
	log.Info("shutting down")

	done := make(chan struct{})
	go func() {
		u.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("shutdown timed out, exiting anyway")
	}
}

// buildHookManager translates the -hook-* flags into a configured
// hooks.Manager with every assigned sink registered.
func buildHookManager(cfg *cliConfig) (*hooks.Manager, error) {
	hookCfg := hooks.Config{
		Timeout:     cfg.hookTimeout,
		Concurrency: cfg.hookConcurrency,
		StdioFormat: cfg.hookStdioFormat,
	}
	mgr := hooks.NewManager(hookCfg, logger.Logger().With("component", "hooks"))

	timeout, err := time.ParseDuration(cfg.hookTimeout)
	if err != nil {
		return nil, err
	}

	for i, assignment := range cfg.hookScripts {
		eventType, target, _ := strings.Cut(assignment, "=")
		h := hooks.NewShellHook(fmt.Sprintf("shell-%d", i), target, timeout)
		if err := mgr.RegisterHook(hooks.EventType(eventType), h); err != nil {
			return nil, err
		}
	}
	for i, assignment := range cfg.hookWebhooks {
		eventType, target, _ := strings.Cut(assignment, "=")
		h := hooks.NewWebhookHook(fmt.Sprintf("webhook-%d", i), target, timeout)
		if err := mgr.RegisterHook(hooks.EventType(eventType), h); err != nil {
			return nil, err
		}
	}
	return mgr, nil
}
