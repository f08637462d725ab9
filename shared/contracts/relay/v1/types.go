package v1

import "encoding/json"

// Outbound is a server-originated frame. The set of implementations is closed.
type Outbound interface {
	outbound()
}

// ReceiveFile wraps a forwarded frame for the recipient.
type ReceiveFile struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Error reports a relay failure to a client.
type Error struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

func (ReceiveFile) outbound() {}
func (Error) outbound()       {}

// NewReceiveFile builds a receive_file frame around the original sender frame.
func NewReceiveFile(data json.RawMessage) ReceiveFile {
	return ReceiveFile{Action: ActionReceiveFile, Data: data}
}

// NewError builds an error frame.
func NewError(msg string) Error {
	return Error{Action: ActionError, Message: msg}
}

// Encode serializes an outbound frame.
func Encode(out Outbound) ([]byte, error) {
	return json.Marshal(out)
}
