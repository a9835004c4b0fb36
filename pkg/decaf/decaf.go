package decaf

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/decaf/internal/metrics"
	"github.com/harun/decaf/internal/tracing"
	"github.com/harun/decaf/pkg/acp"
	"github.com/harun/decaf/pkg/jsonrpc"
	"github.com/harun/decaf/pkg/link"
	"github.com/harun/decaf/pkg/transport"
	"github.com/rs/zerolog"
)

const (
	// DefaultInterval is the flush interval used when none is configured.
	DefaultInterval = 100 * time.Millisecond

	// LinkName names links built by Run.
	LinkName = "decaf"
)

// Decaf is the coalescing proxy component.
type Decaf struct {
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Decaf.
type Option func(*Decaf)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Decaf) {
		d.logger = logger
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Decaf) {
		d.metrics = m
	}
}

// New creates a Decaf flushing every interval. A non-positive interval
// selects DefaultInterval.
func New(interval time.Duration, opts ...Option) *Decaf {
	if interval <= 0 {
		interval = DefaultInterval
	}
	d := &Decaf{
		interval: interval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("module", "decaf").Logger()
	return d
}

// Interval returns the flush interval.
func (d *Decaf) Interval() time.Duration {
	return d.interval
}

// Run proxies between client and agent with coalescing enabled.
func (d *Decaf) Run(ctx context.Context, client, agent transport.Stream) error {
	b := link.NewBuilder(LinkName).
		WithLogger(d.logger).
		WithMetrics(d.metrics)

	store := d.register(b)
	defer func() { d.metrics.AddBufferedSessions(-store.Len()) }()

	return b.Run(ctx, client, agent)
}

// register installs the buffering handlers and flush triggers on b and
// returns the link's store.
func (d *Decaf) register(b *link.Builder) *Store {
	store := NewStore()
	flusher := NewFlusher(store, d.logger, d.metrics)

	b.OnNotification(acp.MethodSessionUpdate, d.onSessionUpdate(store, flusher)).
		OnResponseTo(acp.MethodSessionPrompt, d.onPromptResponse(flusher)).
		BeforeForward(d.beforeForward(flusher)).
		Spawn(d.tick(flusher))
	return store
}

func (d *Decaf) onSessionUpdate(store *Store, flusher *Flusher) link.NotificationHandler {
	return func(ctx context.Context, cx *link.Conn, msg *jsonrpc.Message) error {
		n, err := acp.ParseSessionNotification(msg.Params)
		if err != nil {
			// Not ours to judge; treat it as a boundary and pass it on.
			d.logger.Debug().Err(err).Msg("Forwarding undecodable session update")
			if err := d.flushFor(ctx, cx, flusher, msg); err != nil {
				return err
			}
			return cx.Send(ctx, link.RoleClient, msg)
		}

		if Classify(n) == ClassAccumulate {
			text, err := n.ChunkText()
			if err != nil {
				return fmt.Errorf("buffer chunk for session %s: %w", n.SessionID, err)
			}
			if store.Accumulate(n.SessionID, text, n) {
				d.metrics.AddBufferedSessions(1)
			}
			d.metrics.ObserveFragment(len(text))
			return nil
		}

		d.metrics.ObserveBoundary(n.Update.Kind)
		if err := flusher.FlushSession(ctx, cx, n.SessionID, metrics.TriggerBoundary); err != nil {
			return err
		}
		return cx.Send(ctx, link.RoleClient, msg)
	}
}

func (d *Decaf) onPromptResponse(flusher *Flusher) link.ResponseHandler {
	return func(ctx context.Context, cx *link.Conn, resp *jsonrpc.Message) error {
		ev := d.logger.Debug().Str("id", resp.IDKey())
		if resp.Error != nil {
			ev = ev.Int("error_code", resp.Error.Code)
		} else {
			ev = ev.Str("stop_reason", acp.StopReasonOf(resp.Result))
		}
		ev.Msg("Prompt finished")

		return flusher.FlushAll(ctx, cx, metrics.TriggerCompletion)
	}
}

func (d *Decaf) beforeForward(flusher *Flusher) link.ForwardHook {
	return func(ctx context.Context, cx *link.Conn, msg *jsonrpc.Message) error {
		return d.flushFor(ctx, cx, flusher, msg)
	}
}

// flushFor flushes the session msg refers to, or every session when it
// names none.
func (d *Decaf) flushFor(ctx context.Context, cx *link.Conn, flusher *Flusher, msg *jsonrpc.Message) error {
	if id, ok := acp.SessionIDOf(msg.Params); ok {
		return flusher.FlushSession(tracing.WithSessionID(ctx, id.String()), cx, id, metrics.TriggerBoundary)
	}
	return flusher.FlushAll(ctx, cx, metrics.TriggerBoundary)
}

func (d *Decaf) tick(flusher *Flusher) link.Task {
	return func(ctx context.Context, cx *link.Conn) error {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		d.logger.Debug().Dur("interval", d.interval).Msg("Flush timer started")

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := flusher.FlushAll(ctx, cx, metrics.TriggerTimer); err != nil {
					return err
				}
			}
		}
	}
}
