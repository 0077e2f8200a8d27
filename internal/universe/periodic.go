package universe

import (
	"context"
	"time"

	"github.com/alxayo/ftl-go/internal/rpcpeer"
)

// periodicLoop runs every cfg.PeriodicInterval: first it drives reconnect
// attempts for every outgoing peer sitting in kReconnecting, then it
// garbage-collects slots whose peer is kDisconnected and has no jobs left
// running, per spec.md §4.7.
func (u *Universe) periodicLoop(ctx context.Context) {
	defer u.wg.Done()
	ticker := time.NewTicker(u.cfg.PeriodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.runReconnects(ctx)
			u.collectGarbage()
		}
	}
}

func (u *Universe) runReconnects(ctx context.Context) {
	for _, p := range u.Peers() {
		if !p.IsOutgoing() || p.Status() != rpcpeer.StatusReconnecting {
			continue
		}
		if u.cfg.ReconnectBudget > 0 && u.attemptsExhausted(p) {
			continue
		}
		if !p.Reconnect(ctx) {
			u.recordFailedAttempt(p)
		}
	}
}

func (u *Universe) attemptsExhausted(p *rpcpeer.Peer) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.retries[p.LocalID()] >= u.cfg.ReconnectBudget
}

func (u *Universe) recordFailedAttempt(p *rpcpeer.Peer) {
	u.mu.Lock()
	u.retries[p.LocalID()]++
	u.mu.Unlock()
}

// collectGarbage reclaims slots whose peer has fully disconnected, freeing
// the local_id for reuse by insertPeer.
func (u *Universe) collectGarbage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, s := range u.peers {
		p := s.peer
		if p == nil || p.Status() != rpcpeer.StatusDisconnected {
			continue
		}
		delete(u.byURI, p.URI().Base())
		delete(u.byPeerID, p.ID())
		delete(u.retries, p.LocalID())
		s.peer = nil
	}
}
