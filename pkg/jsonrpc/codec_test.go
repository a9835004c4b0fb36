package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("should parse request", func(t *testing.T) {
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"session/prompt","params":{"sessionId":"s1"}}`))
		require.NoError(t, err)
		assert.Equal(t, KindRequest, msg.Kind())
		assert.Equal(t, "session/prompt", msg.Method)
		assert.Equal(t, "1", msg.IDKey())
		assert.JSONEq(t, `{"sessionId":"s1"}`, string(msg.Params))
	})

	t.Run("should parse notification", func(t *testing.T) {
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","method":"session/update","params":{}}`))
		require.NoError(t, err)
		assert.Equal(t, KindNotification, msg.Kind())
	})

	t.Run("should parse response with null result", func(t *testing.T) {
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":"abc","result":null}`))
		require.NoError(t, err)
		assert.Equal(t, KindResponse, msg.Kind())
		assert.Equal(t, `"abc"`, msg.IDKey())
	})

	t.Run("should parse error response", func(t *testing.T) {
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":7,"error":{"code":-32603,"message":"boom"}}`))
		require.NoError(t, err)
		assert.Equal(t, KindResponse, msg.Kind())
		require.NotNil(t, msg.Error)
		assert.Equal(t, InternalError, msg.Error.Code)
		assert.Contains(t, msg.Error.Error(), "boom")
	})

	t.Run("should default version", func(t *testing.T) {
		msg, err := Parse([]byte(`{"method":"ping"}`))
		require.NoError(t, err)
		assert.Equal(t, Version, msg.JSONRPC)
	})

	t.Run("should reject invalid JSON", func(t *testing.T) {
		_, err := Parse([]byte(`{not json`))
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("should reject empty frame", func(t *testing.T) {
		_, err := Parse([]byte("  \n"))
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("should reject message without method or id", func(t *testing.T) {
		_, err := Parse([]byte(`{"jsonrpc":"2.0"}`))
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})
}

func TestEncodeKeepsParamsVerbatim(t *testing.T) {
	params := `{"sessionId":"s1","update":{"x":1},"_meta":{"k":"v"}}`
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","method":"session/update","params":` + params + `}`))
	require.NoError(t, err)

	data, err := Encode(msg)
	require.NoError(t, err)

	var decoded struct {
		Params json.RawMessage `json:"params"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, params, string(decoded.Params))
}

func TestConstructors(t *testing.T) {
	t.Run("notification", func(t *testing.T) {
		msg, err := NewNotification("session/cancel", map[string]string{"sessionId": "s1"})
		require.NoError(t, err)
		assert.Equal(t, KindNotification, msg.Kind())
		assert.JSONEq(t, `{"sessionId":"s1"}`, string(msg.Params))
	})

	t.Run("request", func(t *testing.T) {
		msg, err := NewRequest(3, "initialize", nil)
		require.NoError(t, err)
		assert.Equal(t, KindRequest, msg.Kind())
		assert.Equal(t, "3", msg.IDKey())
		assert.Nil(t, msg.Params)
	})

	t.Run("response", func(t *testing.T) {
		msg, err := NewResponse(json.RawMessage(`3`), map[string]string{"stopReason": "end_turn"})
		require.NoError(t, err)
		assert.Equal(t, KindResponse, msg.Kind())
	})
}
