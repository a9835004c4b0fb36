package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrParse is returned for frames that are not valid JSON.
	ErrParse = errors.New("jsonrpc: parse error")
	// ErrInvalidMessage is returned for valid JSON that is not a request, notification or response.
	ErrInvalidMessage = errors.New("jsonrpc: invalid message")
)

// Parse decodes one frame into a Message.
func Parse(data []byte) (*Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrParse)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if msg.Kind() == KindInvalid {
		return nil, ErrInvalidMessage
	}

	// Set JSONRPC version if not provided
	if msg.JSONRPC == "" {
		msg.JSONRPC = Version
	}

	return &msg, nil
}

// Encode serializes m as a single frame without a trailing newline.
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, ErrInvalidMessage
	}
	if m.JSONRPC == "" {
		m.JSONRPC = Version
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return data, nil
}

// NewNotification builds a notification with params marshaled from v.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalRaw(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Message{JSONRPC: Version, Method: method, Params: raw}, nil
}

// NewRequest builds a request. id must marshal to a string or a number.
func NewRequest(id any, method string, params any) (*Message, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("marshal id: %w", err)
	}
	raw, err := marshalRaw(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Message{JSONRPC: Version, ID: rawID, Method: method, Params: raw}, nil
}

// NewResponse builds a success response for the request id.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{JSONRPC: Version, ID: cloneRaw(id), Result: raw}, nil
}

func marshalRaw(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return cloneRaw(p), nil
	default:
		return json.Marshal(v)
	}
}
