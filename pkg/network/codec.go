// pkg/network/codec.go
package network

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/opd-ai/go-quadsim/pkg/engine"
)

// Format selects how server messages are encoded on the wire
type Format string

const (
	FormatMsgpack Format = "msgpack"
	FormatJSON    Format = "json"
)

// ParseFormat maps the format query parameter to a Format. The empty
// string selects msgpack.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMsgpack:
		return FormatMsgpack, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown stream format %q", s)
}

// MessageType is the websocket frame type the format travels in
func (f Format) MessageType() int {
	if f == FormatJSON {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// Server message types
const (
	MessageWelcome  = "welcome"
	MessageSnapshot = "snapshot"
	MessageMode     = "mode"
	MessagePong     = "pong"
	MessageError    = "error"
)

// ServerMessage is the envelope for everything the server sends a viewer
type ServerMessage struct {
	Type     string           `json:"type" msgpack:"type"`
	ViewerID string           `json:"viewerId,omitempty" msgpack:"viewerId,omitempty"`
	Mode     string           `json:"mode,omitempty" msgpack:"mode,omitempty"`
	Error    string           `json:"error,omitempty" msgpack:"error,omitempty"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty" msgpack:"snapshot,omitempty"`
}

// Encode serializes msg in format f. Msgpack output uses compact ints and
// floats: whole or float32-exact values take fewer than nine bytes.
func (f Format) Encode(msg *ServerMessage) ([]byte, error) {
	if f == FormatJSON {
		return json.Marshal(msg)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	enc.UseCompactFloats(true)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode
func (f Format) Decode(data []byte, msg *ServerMessage) error {
	if f == FormatJSON {
		return json.Unmarshal(data, msg)
	}
	return msgpack.Unmarshal(data, msg)
}
