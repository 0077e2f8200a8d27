package rpcpeer

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/wire"
)

// feed appends freshly-read bytes to the accumulator and, if no decode pass
// is currently running, schedules one on a fresh goroutine. This is the Go
// translation of the original's already_processing_/recv_checked_ atomic
// flag pair: busy tracks whether a decode goroutine is active, dirty tracks
// whether bytes have arrived since that goroutine's last pass began.
func (p *Peer) feed(data []byte) {
	p.recvMu.Lock()
	if p.recvBuf.Len()+len(data) > maxMessageSize {
		p.recvMu.Unlock()
		p.closeInternal(false, errors.KindBufferSize, fmt.Errorf("receive buffer exceeds %d bytes", maxMessageSize))
		return
	}
	p.recvBuf.Write(data)
	p.recvMu.Unlock()

	p.dirty.Store(true)
	if p.busy.CompareAndSwap(false, true) {
		p.jobs.Add(1)
		go p.decodeLoop()
	}
}

// decodeLoop drains every complete object currently in the accumulator,
// then clears the busy flag — unless new bytes arrived during the drain
// (the dirty flag), in which case it loops instead of racing a second
// goroutine into existence.
func (p *Peer) decodeLoop() {
	defer p.jobs.Done()
	for {
		p.dirty.Store(false)
		p.drainDecoded()
		if !p.dirty.Load() {
			p.busy.Store(false)
			if p.dirty.Load() && p.busy.CompareAndSwap(false, true) {
				continue
			}
			return
		}
	}
}

// drainDecoded repeatedly decodes one self-describing value at a time from
// the front of the accumulator, dispatching each, until the buffer holds no
// further complete value.
func (p *Peer) drainDecoded() {
	for {
		p.recvMu.Lock()
		buf := p.recvBuf.Bytes()
		if len(buf) == 0 {
			p.recvMu.Unlock()
			return
		}
		r := bytes.NewReader(buf)
		v, err := wire.DecodeValue(r)
		if err != nil {
			p.recvMu.Unlock()
			if isIncompleteFrame(err) {
				return
			}
			p.closeInternal(p.reconnectOnProtocolError, errors.KindBadParse, err)
			return
		}
		consumed := len(buf) - r.Len()
		p.recvBuf.Next(consumed)
		p.recvMu.Unlock()

		p.dispatchFrame(v)
	}
}

func isIncompleteFrame(err error) bool {
	return stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF)
}

// dispatchFrame interprets a decoded value as a call/response/notify frame
// and routes it accordingly.
func (p *Peer) dispatchFrame(v any) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		p.fireError(errors.KindBadParse, "peer.dispatch", fmt.Errorf("malformed frame: %T", v))
		return
	}
	tag, ok := asInt64(arr[0])
	if !ok {
		p.fireError(errors.KindBadParse, "peer.dispatch", fmt.Errorf("frame tag not an integer: %v", arr[0]))
		return
	}

	switch tag {
	case frameCall:
		if len(arr) != 4 {
			p.fireError(errors.KindBadParse, "peer.dispatch", fmt.Errorf("malformed call frame (len=%d)", len(arr)))
			return
		}
		id64, _ := asInt64(arr[1])
		name, _ := arr[2].(string)
		args, _ := arr[3].([]any)
		p.handleCall(uint32(id64), name, args)
	case frameResponse:
		if len(arr) != 4 {
			p.fireError(errors.KindBadParse, "peer.dispatch", fmt.Errorf("malformed response frame (len=%d)", len(arr)))
			return
		}
		id64, _ := asInt64(arr[1])
		p.handleResponse(uint32(id64), arr[2], arr[3])
	case frameNotify:
		if len(arr) != 3 {
			p.fireError(errors.KindBadParse, "peer.dispatch", fmt.Errorf("malformed notify frame (len=%d)", len(arr)))
			return
		}
		name, _ := arr[1].(string)
		args, _ := arr[2].([]any)
		p.handleNotify(name, args)
	default:
		p.fireError(errors.KindBadParse, "peer.dispatch", fmt.Errorf("unknown frame tag %d", tag))
	}
}

func asInt64(v any) (int64, bool) {
	n, ok := v.(int64)
	return n, ok
}

func (p *Peer) handleCall(callID uint32, name string, args []any) {
	result, err := p.dispatcher.Dispatch(p, name, args)
	if sendErr := p.sendFrame(buildResponse(callID, err, result)); sendErr != nil {
		p.fireError(errors.KindSocketError, "peer.respond", sendErr)
	}
}

func (p *Peer) handleNotify(name string, args []any) {
	if _, err := p.dispatcher.Dispatch(p, name, args); err != nil {
		p.log.Debug("unhandled notification", "name", name, "err", err)
	}
}
