package decaf

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/harun/decaf/internal/metrics"
	"github.com/harun/decaf/pkg/acp"
	"github.com/harun/decaf/pkg/jsonrpc"
	"github.com/harun/decaf/pkg/link"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent []*jsonrpc.Message
	err  error
}

func (r *recorder) SendNotification(ctx context.Context, to link.Role, method string, params json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if to != link.RoleClient {
		return errors.New("flush sent to the agent")
	}
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) chunks(t *testing.T) []acp.SessionNotification {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]acp.SessionNotification, 0, len(r.sent))
	for _, msg := range r.sent {
		require.Equal(t, acp.MethodSessionUpdate, msg.Method)
		n, err := acp.ParseSessionNotification(msg.Params)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func chunkText(t *testing.T, n acp.SessionNotification) string {
	t.Helper()
	text, err := n.ChunkText()
	require.NoError(t, err)
	return text
}

func newTestFlusher() (*Store, *Flusher, *metrics.Metrics) {
	store := NewStore()
	m := metrics.NewMetrics()
	return store, NewFlusher(store, zerolog.Nop(), m), m
}

func TestFlushSession(t *testing.T) {
	ctx := context.Background()

	t.Run("should send one chunk with all text", func(t *testing.T) {
		store, f, m := newTestFlusher()
		out := &recorder{}

		for _, w := range []string{"Hel", "lo", ", ", "world", "!"} {
			store.Accumulate("s1", w, acp.NewTextChunk("s1", w))
		}

		require.NoError(t, f.FlushSession(ctx, out, "s1", metrics.TriggerBoundary))

		chunks := out.chunks(t)
		require.Len(t, chunks, 1)
		assert.Equal(t, acp.SessionID("s1"), chunks[0].SessionID)
		assert.Equal(t, "Hello, world!", chunkText(t, chunks[0]))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.CoalescedEventsTotal.WithLabelValues(metrics.TriggerBoundary)))
	})

	t.Run("should keep template fields", func(t *testing.T) {
		store, f, _ := newTestFlusher()
		out := &recorder{}

		tmpl, err := acp.ParseSessionNotification([]byte(`{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"b","annotations":{"priority":1}},"_meta":{"k":"v"}}}`))
		require.NoError(t, err)

		store.Accumulate("s1", "a", acp.NewTextChunk("s1", "a"))
		store.Accumulate("s1", "b", tmpl)

		require.NoError(t, f.FlushSession(ctx, out, "s1", metrics.TriggerTimer))

		require.Len(t, out.sent, 1)
		assert.JSONEq(t,
			`{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"ab","annotations":{"priority":1}},"_meta":{"k":"v"}}}`,
			string(out.sent[0].Params))
	})

	t.Run("should do nothing without pending text", func(t *testing.T) {
		_, f, _ := newTestFlusher()
		out := &recorder{}

		require.NoError(t, f.FlushSession(ctx, out, "s1", metrics.TriggerBoundary))
		assert.Empty(t, out.sent)
	})

	t.Run("should be idempotent", func(t *testing.T) {
		store, f, _ := newTestFlusher()
		out := &recorder{}

		store.Accumulate("s1", "x", acp.NewTextChunk("s1", "x"))
		require.NoError(t, f.FlushSession(ctx, out, "s1", metrics.TriggerBoundary))
		require.NoError(t, f.FlushSession(ctx, out, "s1", metrics.TriggerBoundary))

		assert.Len(t, out.sent, 1)
	})

	t.Run("should leave other sessions alone", func(t *testing.T) {
		store, f, _ := newTestFlusher()
		out := &recorder{}

		store.Accumulate("s1", "x", acp.NewTextChunk("s1", "x"))
		store.Accumulate("s2", "y", acp.NewTextChunk("s2", "y"))
		require.NoError(t, f.FlushSession(ctx, out, "s1", metrics.TriggerBoundary))

		assert.Len(t, out.sent, 1)
		assert.Equal(t, 1, store.PendingBytes("s2"))
	})

	t.Run("should return send errors", func(t *testing.T) {
		store, f, _ := newTestFlusher()
		boom := errors.New("pipe closed")
		out := &recorder{err: boom}

		store.Accumulate("s1", "x", acp.NewTextChunk("s1", "x"))
		err := f.FlushSession(ctx, out, "s1", metrics.TriggerBoundary)
		assert.ErrorIs(t, err, boom)
	})
}

func TestFlushAll(t *testing.T) {
	ctx := context.Background()

	t.Run("should flush every pending session", func(t *testing.T) {
		store, f, m := newTestFlusher()
		out := &recorder{}

		store.Accumulate("s1", "a", acp.NewTextChunk("s1", "a"))
		store.Accumulate("s2", "b", acp.NewTextChunk("s2", "b"))
		store.Accumulate("s1", "c", acp.NewTextChunk("s1", "c"))

		require.NoError(t, f.FlushAll(ctx, out, metrics.TriggerCompletion))

		chunks := out.chunks(t)
		require.Len(t, chunks, 2)
		got := map[acp.SessionID]string{}
		for _, c := range chunks {
			got[c.SessionID] = chunkText(t, c)
		}
		assert.Equal(t, map[acp.SessionID]string{"s1": "ac", "s2": "b"}, got)
		assert.Empty(t, store.PendingSessionIDs(), "nothing may be pending after completion")
		assert.Equal(t, float64(2), testutil.ToFloat64(m.CoalescedEventsTotal.WithLabelValues(metrics.TriggerCompletion)))
	})

	t.Run("should send nothing on an empty store", func(t *testing.T) {
		_, f, _ := newTestFlusher()
		out := &recorder{}

		require.NoError(t, f.FlushAll(ctx, out, metrics.TriggerTimer))
		require.NoError(t, f.FlushAll(ctx, out, metrics.TriggerTimer))
		assert.Empty(t, out.sent)
	})

	t.Run("should stop at the first send error", func(t *testing.T) {
		store, f, _ := newTestFlusher()
		boom := errors.New("pipe closed")
		out := &recorder{err: boom}

		store.Accumulate("s1", "a", acp.NewTextChunk("s1", "a"))
		store.Accumulate("s2", "b", acp.NewTextChunk("s2", "b"))

		err := f.FlushAll(ctx, out, metrics.TriggerTimer)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []acp.SessionID{"s2"}, store.PendingSessionIDs())
	})
}

// Random fragments with flushes at random points: the concatenation of all
// coalesced chunks equals the concatenation of all fragments, and there is
// never more than one chunk per flush.
func TestFlushPreservesText(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 50; round++ {
		store, f, _ := newTestFlusher()
		out := &recorder{}

		var want strings.Builder
		flushes := 0
		for i := 0; i < 1+rng.IntN(40); i++ {
			frag := strings.Repeat(string(rune('a'+rng.IntN(26))), rng.IntN(4))
			want.WriteString(frag)
			store.Accumulate("s", frag, acp.NewTextChunk("s", frag))

			if rng.IntN(5) == 0 {
				flushes++
				require.NoError(t, f.FlushSession(ctx, out, "s", metrics.TriggerTimer))
			}
		}
		flushes++
		require.NoError(t, f.FlushAll(ctx, out, metrics.TriggerCompletion))

		var got strings.Builder
		for _, c := range out.chunks(t) {
			text := chunkText(t, c)
			assert.NotEmpty(t, text, "empty chunks must never be sent")
			got.WriteString(text)
		}
		assert.Equal(t, want.String(), got.String())
		assert.LessOrEqual(t, len(out.sent), flushes)
	}
}
