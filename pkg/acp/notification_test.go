package acp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunkWithMeta = `{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"Hi ","annotations":{"priority":0.5}}},"_meta":{"trace":"abc"}}`

func TestParseSessionNotification(t *testing.T) {
	t.Run("should decode text chunk", func(t *testing.T) {
		n, err := ParseSessionNotification(json.RawMessage(chunkWithMeta))
		require.NoError(t, err)
		assert.Equal(t, SessionID("s1"), n.SessionID)
		assert.True(t, n.IsTextChunk())

		text, err := n.ChunkText()
		require.NoError(t, err)
		assert.Equal(t, "Hi ", text)
	})

	t.Run("should decode non-text chunk", func(t *testing.T) {
		n, err := ParseSessionNotification(json.RawMessage(`{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"image","data":"AAAA","mimeType":"image/png"}}}`))
		require.NoError(t, err)
		assert.False(t, n.IsTextChunk())

		_, err = n.ChunkText()
		assert.ErrorIs(t, err, ErrNotText)
	})

	t.Run("should decode other update variants", func(t *testing.T) {
		n, err := ParseSessionNotification(json.RawMessage(`{"sessionId":"s1","update":{"sessionUpdate":"tool_call","toolCallId":"t1","title":"Read"}}`))
		require.NoError(t, err)
		assert.Equal(t, UpdateToolCall, n.Update.Kind)
		assert.False(t, n.IsTextChunk())
	})

	t.Run("should reject missing session id", func(t *testing.T) {
		_, err := ParseSessionNotification(json.RawMessage(`{"update":{"sessionUpdate":"plan"}}`))
		assert.ErrorIs(t, err, ErrMissingSession)
	})

	t.Run("should reject invalid JSON", func(t *testing.T) {
		_, err := ParseSessionNotification(json.RawMessage(`[1,2`))
		assert.Error(t, err)
	})
}

func TestChunkTextWithoutText(t *testing.T) {
	n, err := ParseSessionNotification(json.RawMessage(`{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text"}}}`))
	require.NoError(t, err)
	require.True(t, n.IsTextChunk())

	_, err = n.ChunkText()
	assert.ErrorIs(t, err, ErrNotText)
}

func TestWithText(t *testing.T) {
	n, err := ParseSessionNotification(json.RawMessage(chunkWithMeta))
	require.NoError(t, err)

	out, err := n.WithText("Hi there")
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"Hi there","annotations":{"priority":0.5}}},"_meta":{"trace":"abc"}}`,
		string(out.Raw()))

	text, err := out.ChunkText()
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)

	// The template is untouched.
	original, err := n.ChunkText()
	require.NoError(t, err)
	assert.Equal(t, "Hi ", original)
	assert.Equal(t, chunkWithMeta, string(n.Raw()))
}

func TestWithTextRejectsNonText(t *testing.T) {
	n, err := ParseSessionNotification(json.RawMessage(`{"sessionId":"s1","update":{"sessionUpdate":"plan","entries":[]}}`))
	require.NoError(t, err)

	_, err = n.WithText("x")
	assert.ErrorIs(t, err, ErrNotText)
}

func TestNewTextChunk(t *testing.T) {
	n := NewTextChunk("s9", "quick ")
	assert.Equal(t, SessionID("s9"), n.SessionID)

	text, err := n.ChunkText()
	require.NoError(t, err)
	assert.Equal(t, "quick ", text)
	assert.JSONEq(t,
		`{"sessionId":"s9","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"quick "}}}`,
		string(n.Raw()))
}

func TestSessionIDOf(t *testing.T) {
	id, ok := SessionIDOf(json.RawMessage(`{"sessionId":"abc","toolCall":{}}`))
	assert.True(t, ok)
	assert.Equal(t, SessionID("abc"), id)

	_, ok = SessionIDOf(json.RawMessage(`{"path":"/tmp"}`))
	assert.False(t, ok)

	_, ok = SessionIDOf(json.RawMessage(`{"sessionId":42}`))
	assert.False(t, ok)

	_, ok = SessionIDOf(nil)
	assert.False(t, ok)
}

func TestStopReasonOf(t *testing.T) {
	assert.Equal(t, StopEndTurn, StopReasonOf(json.RawMessage(`{"stopReason":"end_turn"}`)))
	assert.Equal(t, "", StopReasonOf(nil))
}
