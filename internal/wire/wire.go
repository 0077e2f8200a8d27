// Package wire implements a small self-describing, length-delimited object
// codec used by the RPC peer (internal/rpcpeer) for call/notification/
// response framing and by internal/protocol/packet's Encode/Decode. A
// marker byte identifies the value's type, followed by a type-specific
// encoding, so a resynchronising decoder can always find the next value
// boundary from the marker alone.
//
// Supported Go types mirror what the protocol layer actually needs to move
// across the wire: nil, bool, int64, float64, string, []byte, []any and
// map[string]any (string-keyed only, values themselves are wire-encodable).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/alxayo/ftl-go/internal/errors"
)

// Marker bytes. Chosen distinct from the RTMP AMF0 markers to avoid any
// temptation to cross-decode the two formats; values are otherwise
// unconstrained.
const (
	markerNil byte = iota + 0x40
	markerBool
	markerInt
	markerFloat
	markerString
	markerBytes
	markerArray
	markerMap
)

// EncodeValue writes a single self-describing value to w.
func EncodeValue(w io.Writer, v any) error {
	if err := encodeAny(w, v); err != nil {
		return errors.NewProtocolError("wire.encode", err)
	}
	return nil
}

// Marshal encodes a single value and returns the bytes.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue reads a single self-describing value from r.
func DecodeValue(r io.Reader) (any, error) {
	v, err := decodeAny(r)
	if err != nil {
		return nil, errors.NewProtocolError("wire.decode", err)
	}
	return v, nil
}

// Unmarshal decodes a single value from data.
func Unmarshal(data []byte) (any, error) {
	return DecodeValue(bytes.NewReader(data))
}

func encodeAny(w io.Writer, v any) error {
	switch t := v.(type) {
	case nil:
		return writeByte(w, markerNil)
	case bool:
		if err := writeByte(w, markerBool); err != nil {
			return err
		}
		b := byte(0)
		if t {
			b = 1
		}
		return writeByte(w, b)
	case int:
		return encodeAny(w, int64(t))
	case int32:
		return encodeAny(w, int64(t))
	case uint32:
		return encodeAny(w, int64(t))
	case uint8:
		return encodeAny(w, int64(t))
	case int64:
		if err := writeByte(w, markerInt); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, t)
	case float64:
		if err := writeByte(w, markerFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, math.Float64bits(t))
	case string:
		if err := writeByte(w, markerString); err != nil {
			return err
		}
		return writeLenPrefixed(w, []byte(t))
	case []byte:
		if err := writeByte(w, markerBytes); err != nil {
			return err
		}
		return writeLenPrefixed(w, t)
	case []any:
		if err := writeByte(w, markerArray); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(t))); err != nil {
			return err
		}
		for i, e := range t {
			if err := encodeAny(w, e); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	case map[string]any:
		if err := writeByte(w, markerMap); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(t))); err != nil {
			return err
		}
		for k, e := range t {
			if err := writeLenPrefixed(w, []byte(k)); err != nil {
				return err
			}
			if err := encodeAny(w, e); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported wire type %T", v)
	}
}

func decodeAny(r io.Reader) (any, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, err
	}
	switch m[0] {
	case markerNil:
		return nil, nil
	case markerBool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case markerInt:
		var v int64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return v, nil
	case markerFloat:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil
	case markerString:
		b, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case markerBytes:
		return readLenPrefixed(r)
	case markerArray:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := range out {
			v, err := decodeAny(r)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case markerMap:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		out := make(map[string]any, n)
		for i := uint32(0); i < n; i++ {
			kb, err := readLenPrefixed(r)
			if err != nil {
				return nil, err
			}
			v, err := decodeAny(r)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", string(kb), err)
			}
			out[string(kb)] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown wire marker 0x%02x", m[0])
	}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > 64<<20 {
		return nil, fmt.Errorf("length prefix too large: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
