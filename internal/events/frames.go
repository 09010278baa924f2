package events

import (
	"encoding/json"
	"errors"
)

// Error codes carried by error frames. Clients match on the code, the text
// is informational only.
const (
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeProtocol       = "PROTOCOL_ERROR"
	CodePersistence    = "PERSISTENCE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorFrame is sent inline when a frame cannot be processed.
type ErrorFrame struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFrame acknowledges a processed frame that has no other reply.
type StatusFrame struct {
	Status string `json:"status"`
}

// ErrorBytes serializes an error frame.
func ErrorBytes(code, message string) []byte {
	b, _ := json.Marshal(ErrorFrame{Error: message, Code: code})
	return b
}

// StatusBytes serializes a status frame.
func StatusBytes(status string) []byte {
	b, _ := json.Marshal(StatusFrame{Status: status})
	return b
}

// ProtocolErrorText maps decode errors onto the text sent to clients.
func ProtocolErrorText(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return "Unknown event"
	case errors.Is(err, ErrMissingField):
		return err.Error()
	default:
		return "Invalid message"
	}
}
