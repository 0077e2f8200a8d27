package rpcpeer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alxayo/ftl-go/internal/errors"
)

// callResult is what a Future resolves to.
type callResult struct {
	value any
	err   error
}

// Future represents one in-flight asyncCall, letting the caller wait for
// or cancel the eventual response.
type Future struct {
	id   uint32
	peer *Peer
	ch   chan callResult
}

// Wait blocks until the response arrives or ctx is done, in which case the
// call is cancelled and a classified timeout/cancellation error returned.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case res := <-f.ch:
		return res.value, res.err
	case <-ctx.Done():
		f.peer.cancelCall(f.id)
		return nil, ctx.Err()
	}
}

// Cancel unregisters the pending callback; the completion will never fire.
func (f *Future) Cancel() { f.peer.cancelCall(f.id) }

// AsyncCall assigns an id, registers a completion callback, and sends a
// call frame. The counterpart's response is matched back to this Future's
// channel by id in handleResponse.
func (p *Peer) AsyncCall(name string, args ...any) *Future {
	id := atomic.AddUint32(&nextRPCID, 1)
	ch := make(chan callResult, 1)

	p.cbMu.Lock()
	p.callbacks[id] = func(result any, callErr error) {
		ch <- callResult{value: result, err: callErr}
	}
	p.cbMu.Unlock()

	if err := p.sendFrame(buildCall(id, name, args)); err != nil {
		p.cancelCall(id)
		ch <- callResult{err: err}
	}

	return &Future{id: id, peer: p, ch: ch}
}

// Call is AsyncCall followed by a one-second timed wait; on timeout the
// callback is cancelled and a kRPCResponse-classified timeout error is
// returned.
func (p *Peer) Call(ctx context.Context, name string, args ...any) (any, error) {
	fut := p.AsyncCall(name, args...)
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := fut.Wait(cctx)
	if err == context.DeadlineExceeded {
		return nil, errors.NewRuntimeError(errors.KindRPCResponse, "peer.call",
			fmt.Errorf("call timeout: %s", name))
	}
	return result, err
}

// cancelCall removes a pending callback so its eventual response (if one
// ever arrives) is silently dropped by handleResponse.
func (p *Peer) cancelCall(id uint32) {
	p.cbMu.Lock()
	delete(p.callbacks, id)
	p.cbMu.Unlock()
}

// handleResponse correlates an incoming response frame to its callback by
// id, atomically removing it so at most one invocation ever happens.
func (p *Peer) handleResponse(id uint32, errVal, result any) {
	p.cbMu.Lock()
	cb, ok := p.callbacks[id]
	if ok {
		delete(p.callbacks, id)
	}
	p.cbMu.Unlock()
	if !ok {
		return
	}

	if errVal != nil {
		msg, _ := errVal.(string)
		if msg == "" {
			msg = fmt.Sprintf("%v", errVal)
		}
		cb(nil, errors.NewRuntimeError(errors.KindRPCResponse, "peer.response", fmt.Errorf("%s", msg)))
		return
	}
	cb(result, nil)
}
