package acp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	// ErrNotText is returned when a notification expected to carry a text
	// message chunk does not.
	ErrNotText = errors.New("acp: update is not a text message chunk")
	// ErrMissingSession is returned for session/update params without a sessionId.
	ErrMissingSession = errors.New("acp: missing sessionId")
)

const textPath = "update.content.text"

// SessionNotification is the params object of a session/update notification.
// The raw JSON is retained so fields decaf does not model (_meta,
// annotations, future additions) survive re-emission untouched.
type SessionNotification struct {
	SessionID SessionID
	Update    SessionUpdate

	raw json.RawMessage
}

// ParseSessionNotification decodes session/update params.
func ParseSessionNotification(params json.RawMessage) (SessionNotification, error) {
	var decoded struct {
		SessionID SessionID     `json:"sessionId"`
		Update    SessionUpdate `json:"update"`
	}
	if err := json.Unmarshal(params, &decoded); err != nil {
		return SessionNotification{}, fmt.Errorf("decode session notification: %w", err)
	}
	if decoded.SessionID == "" {
		return SessionNotification{}, ErrMissingSession
	}

	raw := make(json.RawMessage, len(params))
	copy(raw, params)

	return SessionNotification{
		SessionID: decoded.SessionID,
		Update:    decoded.Update,
		raw:       raw,
	}, nil
}

// NewTextChunk builds an agent_message_chunk notification carrying text.
func NewTextChunk(id SessionID, text string) SessionNotification {
	raw, _ := json.Marshal(map[string]any{
		"sessionId": id,
		"update": map[string]any{
			"sessionUpdate": UpdateAgentMessageChunk,
			"content": map[string]any{
				"type": ContentText,
				"text": text,
			},
		},
	})
	n, _ := ParseSessionNotification(raw)
	return n
}

// Raw returns the notification's params exactly as they will be sent.
func (n SessionNotification) Raw() json.RawMessage {
	return n.raw
}

// IsTextChunk reports whether the update is an agent message chunk whose
// content block is tagged as text.
func (n SessionNotification) IsTextChunk() bool {
	return n.Update.Kind == UpdateAgentMessageChunk &&
		n.Update.Content != nil &&
		n.Update.Content.Type == ContentText
}

// ChunkText returns the text of an agent message chunk. It fails with
// ErrNotText unless the update is a text chunk that actually carries text.
func (n SessionNotification) ChunkText() (string, error) {
	if !n.IsTextChunk() {
		return "", fmt.Errorf("%w: sessionUpdate=%q", ErrNotText, n.Update.Kind)
	}
	if n.Update.Content.Text == nil {
		return "", fmt.Errorf("%w: text content without text", ErrNotText)
	}
	return *n.Update.Content.Text, nil
}

// WithText returns a copy of n whose chunk text is replaced by text. All other
// fields are kept verbatim.
func (n SessionNotification) WithText(text string) (SessionNotification, error) {
	if !n.IsTextChunk() {
		return SessionNotification{}, fmt.Errorf("%w: sessionUpdate=%q", ErrNotText, n.Update.Kind)
	}

	src := make([]byte, len(n.raw))
	copy(src, n.raw)
	raw, err := sjson.SetBytes(src, textPath, text)
	if err != nil {
		return SessionNotification{}, fmt.Errorf("rewrite chunk text: %w", err)
	}

	out := n
	out.raw = raw
	content := *n.Update.Content
	content.Text = &text
	out.Update.Content = &content
	return out, nil
}

// SessionIDOf extracts params.sessionId without decoding the rest.
func SessionIDOf(params json.RawMessage) (SessionID, bool) {
	if len(params) == 0 {
		return "", false
	}
	v := gjson.GetBytes(params, "sessionId")
	if v.Type != gjson.String || v.Str == "" {
		return "", false
	}
	return SessionID(v.Str), true
}

// StopReasonOf extracts result.stopReason from a session/prompt response.
func StopReasonOf(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}
	return gjson.GetBytes(result, "stopReason").String()
}
