// Package v1 defines the relay wire protocol v1.
//
// Inbound frames are decoded exactly once at the connection boundary into a
// closed set of variants (SendFile, Unknown). Outbound frames are the two
// server-originated shapes: receive_file and error.
package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Action tags (wire-stable).
const (
	// ActionSendFile asks the server to forward the frame to Recipient (client -> server).
	ActionSendFile = "send_file"
	// ActionReceiveFile carries a forwarded frame (server -> recipient).
	ActionReceiveFile = "receive_file"
	// ActionError reports a relay failure (server -> client).
	ActionError = "error"
)

// User-facing error messages (wire-stable).
const (
	MsgRecipientUnavailable = "Recipient not found or not connected."
	MsgInvalidFrame         = "Invalid frame."
	MsgRateLimited          = "Too many frames."
)

var (
	// ErrInvalidJSON is returned when a frame is not valid JSON.
	ErrInvalidJSON = errors.New("invalid json")
	// ErrNotObject is returned when a frame is valid JSON but not an object.
	ErrNotObject = errors.New("frame is not a json object")
)

// Inbound is a decoded client frame. The set of implementations is closed.
type Inbound interface {
	inbound()
}

// SendFile is a request to forward Raw to Recipient.
//
// Sender is whatever the client put in the "sender" field. It is not checked
// against the connection's own identifier.
type SendFile struct {
	Sender    string
	Recipient string

	// Raw is the complete frame exactly as received.
	Raw json.RawMessage
}

// Unknown is any frame whose action is missing or unrecognized.
type Unknown struct {
	Action string
	Raw    json.RawMessage
}

func (SendFile) inbound() {}
func (Unknown) inbound()  {}

// DecodeInbound decodes one frame into its variant.
// Non-string "action", "sender" or "recipient" values are treated as absent.
func DecodeInbound(data []byte) (Inbound, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, ErrInvalidJSON
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	raw := json.RawMessage(trimmed)
	action := stringField(fields, "action")

	switch action {
	case ActionSendFile:
		return SendFile{
			Sender:    stringField(fields, "sender"),
			Recipient: stringField(fields, "recipient"),
			Raw:       raw,
		}, nil
	default:
		return Unknown{Action: action, Raw: raw}, nil
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
