package protocol

import "encoding/json"

// Version is the wire protocol version. It tracks the snapshot format: a
// client speaking another version is refused at HELLO.
const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAction  = "ACTION"
	TypeResult  = "RESULT"
	TypeEvent   = "EVENT"
	TypeDiff    = "DIFF"
	TypeError   = "ERROR"
)

// Frame encodings negotiated at HELLO.
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
