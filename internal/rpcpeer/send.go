package rpcpeer

import (
	"bytes"

	"github.com/alxayo/ftl-go/internal/errors"
	"github.com/alxayo/ftl-go/internal/wire"
)

// sendFrame serialises frame and writes it to the connection under the
// send mutex, the Go equivalent of the original's recursive send_mtx_
// guarding msgpack::pack into a shared vrefbuffer.
func (p *Peer) sendFrame(frame []any) error {
	var buf bytes.Buffer
	if err := wire.EncodeValue(&buf, frame); err != nil {
		return errors.NewRuntimeError(errors.KindPacketFailure, "peer.send", err)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if p.conn == nil {
		return errors.NewRuntimeError(errors.KindSocketError, "peer.send", nil)
	}
	if _, err := p.conn.Write(buf.Bytes()); err != nil {
		return errors.NewRuntimeError(errors.KindSocketError, "peer.send", err)
	}
	return nil
}

// Notify sends a fire-and-forget notification; no response is expected.
func (p *Peer) Notify(name string, args ...any) error {
	return p.sendFrame(buildNotify(name, args))
}
