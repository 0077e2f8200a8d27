package universe

import (
	"context"
	"reflect"
	"time"

	"github.com/alxayo/ftl-go/internal/rpcpeer"
)

const findTimeout = 1 * time.Second

// Broadcast sends a one-way notification to every connected peer.
func (u *Universe) Broadcast(name string, args ...any) {
	for _, p := range u.ConnectedPeers() {
		_ = p.Notify(name, args...)
	}
}

type findResponse struct {
	value any
	err   error
}

func fanOutCalls(ctx context.Context, peers []*rpcpeer.Peer, name string, args []any) <-chan findResponse {
	ch := make(chan findResponse, len(peers))
	for _, p := range peers {
		go func(p *rpcpeer.Peer) {
			v, err := p.Call(ctx, name, args...)
			ch <- findResponse{value: v, err: err}
		}(p)
	}
	return ch
}

// FindOne issues an async call to every connected peer and returns the
// first successful response to arrive within one second, converted to R.
// Mirrors the original's findOne<R>(name, args...).
func FindOne[R any](u *Universe, ctx context.Context, name string, args ...any) (R, error) {
	var zero R
	peers := u.ConnectedPeers()
	if len(peers) == 0 {
		return zero, nil
	}

	cctx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()

	ch := fanOutCalls(cctx, peers, name, args)
	for range peers {
		select {
		case r := <-ch:
			if r.err != nil {
				continue
			}
			if out, ok := coerceTo[R](r.value); ok {
				return out, nil
			}
		case <-cctx.Done():
			return zero, cctx.Err()
		}
	}
	return zero, cctx.Err()
}

// FindAll issues an async call to every connected peer and collects every
// response that arrives within one second into a single slice, in
// arrival order. Mirrors the original's findAll<R>(name, args...).
func FindAll[R any](u *Universe, ctx context.Context, name string, args ...any) ([]R, error) {
	peers := u.ConnectedPeers()
	if len(peers) == 0 {
		return nil, nil
	}

	cctx, cancel := context.WithTimeout(ctx, findTimeout)
	defer cancel()

	ch := fanOutCalls(cctx, peers, name, args)
	out := make([]R, 0, len(peers))
	for range peers {
		select {
		case r := <-ch:
			if r.err != nil {
				continue
			}
			if v, ok := coerceTo[R](r.value); ok {
				out = append(out, v)
			}
		case <-cctx.Done():
			return out, nil
		}
	}
	return out, nil
}

// coerceTo converts a decoded wire value into R via direct assignment or
// reflection, the same permissive rule the dispatcher's own coerce() applies
// to inbound call arguments.
func coerceTo[R any](v any) (R, bool) {
	var zero R
	if v == nil {
		return zero, false
	}
	if out, ok := v.(R); ok {
		return out, true
	}
	want := reflect.TypeOf(zero)
	rv := reflect.ValueOf(v)
	if want != nil && rv.Type().ConvertibleTo(want) {
		return rv.Convert(want).Interface().(R), true
	}
	return zero, false
}
