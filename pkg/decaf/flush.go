package decaf

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/harun/decaf/internal/metrics"
	"github.com/harun/decaf/internal/tracing"
	"github.com/harun/decaf/pkg/acp"
	"github.com/harun/decaf/pkg/link"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Sender delivers a notification to one side of a link. *link.Conn
// implements it.
type Sender interface {
	SendNotification(ctx context.Context, to link.Role, method string, params json.RawMessage) error
}

// Flusher turns buffered text into coalesced chunks.
type Flusher struct {
	store   *Store
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// Held from drain to send so a later flush, or whatever the caller
	// forwards after flushing, cannot overtake text already drained.
	mu sync.Mutex
}

// NewFlusher creates a flusher draining store.
func NewFlusher(store *Store, logger zerolog.Logger, m *metrics.Metrics) *Flusher {
	return &Flusher{
		store:   store,
		logger:  logger.With().Str("module", "flusher").Logger(),
		metrics: m,
	}
}

// FlushSession sends the session's buffered text to the client as one
// chunk. It does nothing when no text is pending.
func (f *Flusher) FlushSession(ctx context.Context, out Sender, id acp.SessionID, trigger string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	err := f.flushLocked(ctx, out, id, trigger)
	f.metrics.ObserveFlush(trigger, time.Since(start))
	return err
}

// FlushAll flushes every session with pending text, stopping at the first
// error.
func (f *Flusher) FlushAll(ctx context.Context, out Sender, trigger string) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.store.PendingSessionIDs()
	if len(ids) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "decaf.flush_all",
		attribute.String("decaf.trigger", trigger),
		attribute.Int("decaf.sessions", len(ids)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { f.metrics.ObserveFlush(trigger, time.Since(start)) }()

	for _, id := range ids {
		if err := f.flushLocked(ctx, out, id, trigger); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flusher) flushLocked(ctx context.Context, out Sender, id acp.SessionID, trigger string) error {
	text, template, ok := f.store.Drain(id)
	if !ok {
		return nil
	}

	chunk, err := template.WithText(text)
	if err != nil {
		return fmt.Errorf("coalesce session %s: %w", id, err)
	}

	if err := out.SendNotification(ctx, link.RoleClient, acp.MethodSessionUpdate, chunk.Raw()); err != nil {
		return fmt.Errorf("flush session %s: %w", id, err)
	}

	f.metrics.ObserveCoalesced(trigger)
	f.logger.Debug().
		Str("session_id", id.String()).
		Str("trigger", trigger).
		Int("bytes", len(text)).
		Msg("Flushed coalesced chunk")

	return nil
}
