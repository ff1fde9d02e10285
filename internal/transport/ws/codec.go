package ws

import (
	"bytes"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dr-vortex/annihilation/internal/protocol"
)

// frame is an encoded server message and its websocket message type.
type frame struct {
	kind int
	data []byte
}

// encode renders v for a session encoding. msgpack reuses the json field
// names so both encodings share one schema.
func encode(encoding string, v any) (frame, error) {
	if encoding == protocol.EncodingMsgpack {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			return frame{}, err
		}
		return frame{kind: websocket.BinaryMessage, data: buf.Bytes()}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return frame{}, err
	}
	return frame{kind: websocket.TextMessage, data: b}, nil
}

// frameSet encodes a message at most once per encoding.
type frameSet struct {
	v      any
	frames map[string]frame
}

func newFrameSet(v any) *frameSet { return &frameSet{v: v, frames: map[string]frame{}} }

func (fs *frameSet) get(encoding string) (frame, error) {
	if f, ok := fs.frames[encoding]; ok {
		return f, nil
	}
	f, err := encode(encoding, fs.v)
	if err != nil {
		return frame{}, err
	}
	fs.frames[encoding] = f
	return f, nil
}

// sendLatest enqueues f, dropping the oldest queued frame when full. It
// reports whether anything was dropped.
func sendLatest(ch chan frame, f frame) (dropped bool) {
	select {
	case ch <- f:
		return false
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
	return true
}
