package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only protocol version decaf speaks.
const Version = "2.0"

// Kind classifies a message by the members it carries.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Message is a JSON-RPC 2.0 envelope. Requests, notifications and responses
// share one struct; Params and Result stay raw so they are forwarded verbatim.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind reports whether m is a request, a notification or a response.
func (m *Message) Kind() Kind {
	switch {
	case m == nil:
		return KindInvalid
	case m.Method != "" && len(m.ID) > 0:
		return KindRequest
	case m.Method != "":
		return KindNotification
	case len(m.ID) > 0 || m.Error != nil || len(m.Result) > 0:
		return KindResponse
	default:
		return KindInvalid
	}
}

// IDKey returns the id in a form usable as a map key. Insignificant
// whitespace is dropped so a peer echoing `1 ` still matches `1`.
func (m *Message) IDKey() string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, m.ID); err != nil {
		return string(m.ID)
	}
	return buf.String()
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
