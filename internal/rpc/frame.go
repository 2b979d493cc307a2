package rpc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// maxFrameLen bounds the length prefix read off the wire before we even
// attempt to allocate a buffer for it, independent of the codec's own
// max_frame_bytes guard on ndarray payloads (§4.1).
const maxFrameLen = 256 << 20

// Request is the wire request frame from §6: endpoint name, optional data
// map, optional bearer token.
type Request struct {
	Endpoint string
	Data     map[string]wire.Value
	APIToken string
}

func (r Request) toValue() wire.Value {
	m := map[string]wire.Value{"endpoint": wire.String(r.Endpoint)}
	if r.Data != nil {
		m["data"] = wire.Map(r.Data)
	}
	if r.APIToken != "" {
		m["api_token"] = wire.String(r.APIToken)
	}
	return wire.Map(m)
}

func requestFromValue(v wire.Value) (Request, error) {
	m, ok := v.AsMap()
	if !ok {
		return Request{}, fmt.Errorf("rpc: request frame is not a map")
	}
	ep, ok := m["endpoint"].AsString()
	if !ok {
		return Request{}, fmt.Errorf("rpc: request frame missing endpoint")
	}
	req := Request{Endpoint: ep}
	if d, ok := m["data"].AsMap(); ok {
		req.Data = d
	}
	if tok, ok := m["api_token"].AsString(); ok {
		req.APIToken = tok
	}
	return req, nil
}

// Reply is the wire reply frame: either endpoint-specific fields or an
// {error} field (§6).
type Reply struct {
	Fields map[string]wire.Value
	Error  string
}

func (r Reply) toValue() wire.Value {
	if r.Error != "" {
		return wire.Map(map[string]wire.Value{"error": wire.String(r.Error)})
	}
	if r.Fields == nil {
		return wire.Map(map[string]wire.Value{})
	}
	return wire.Map(r.Fields)
}

func replyFromValue(v wire.Value) (Reply, error) {
	m, ok := v.AsMap()
	if !ok {
		return Reply{}, fmt.Errorf("rpc: reply frame is not a map")
	}
	if errMsg, ok := m["error"].AsString(); ok && len(m) == 1 {
		return Reply{Error: errMsg}, nil
	}
	return Reply{Fields: m}, nil
}

// writeFrame writes a length-prefixed (4-byte big-endian) payload.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed payload.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("rpc: frame length %d exceeds max %d", n, maxFrameLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
