package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/harun/decaf/internal/metrics"
	"github.com/harun/decaf/internal/tracing"
	"github.com/harun/decaf/pkg/jsonrpc"
	"github.com/harun/decaf/pkg/transport"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// errPeerClosed ends a link cleanly when either side reaches EOF.
var errPeerClosed = errors.New("link: peer closed")

const shutdownGrace = 2 * time.Second

// NotificationHandler takes ownership of an agent notification. It must
// forward the notification itself if the client should see it.
type NotificationHandler func(ctx context.Context, cx *Conn, msg *jsonrpc.Message) error

// ResponseHandler runs before the agent's response to a hooked client request
// is forwarded. Returning an error ends the link and the response is dropped.
type ResponseHandler func(ctx context.Context, cx *Conn, resp *jsonrpc.Message) error

// ForwardHook runs before an agent message without a dedicated handler is
// forwarded to the client.
type ForwardHook func(ctx context.Context, cx *Conn, msg *jsonrpc.Message) error

// Task is a background job scoped to the link. It should return when ctx is
// done.
type Task func(ctx context.Context, cx *Conn) error

// Builder assembles a link. It is not safe for concurrent use; build it once
// and call Run.
type Builder struct {
	name    string
	logger  zerolog.Logger
	metrics *metrics.Metrics

	notifications map[string]NotificationHandler
	responses     map[string]ResponseHandler
	beforeForward []ForwardHook
	tasks         []Task
}

// NewBuilder creates a builder for a link called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:          name,
		logger:        zerolog.Nop(),
		notifications: make(map[string]NotificationHandler),
		responses:     make(map[string]ResponseHandler),
	}
}

// WithLogger sets the logger for the link.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics enables instrumentation.
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

// OnNotification registers h for agent notifications of method, replacing
// any previous handler.
func (b *Builder) OnNotification(method string, h NotificationHandler) *Builder {
	b.notifications[method] = h
	return b
}

// OnResponseTo registers h for agent responses to client requests of method.
func (b *Builder) OnResponseTo(method string, h ResponseHandler) *Builder {
	b.responses[method] = h
	return b
}

// BeforeForward appends a hook for otherwise unhandled agent messages.
func (b *Builder) BeforeForward(h ForwardHook) *Builder {
	b.beforeForward = append(b.beforeForward, h)
	return b
}

// Spawn registers a background task started when the link runs.
func (b *Builder) Spawn(task Task) *Builder {
	b.tasks = append(b.tasks, task)
	return b
}

// Run proxies between client and agent until either side closes, ctx is
// cancelled or something fails. Both streams are closed on return.
func (b *Builder) Run(ctx context.Context, client, agent transport.Stream) (err error) {
	ctx = tracing.WithLink(ctx, b.name)
	ctx = tracing.WithRunID(ctx, tracing.NewRunID())
	logger := tracing.LoggerFromContext(ctx, b.logger)

	ctx, span := tracing.StartSpan(ctx, "link.run", attribute.Int("decaf.tasks", len(b.tasks)))
	cx := newConn(b.name, client, agent, logger, b.metrics)

	started := time.Now()
	b.metrics.LinkStarted()
	logger.Info().Msg("Link started")

	defer func() {
		b.metrics.LinkStopped(err)
		tracing.EndSpan(span, err)
		ev := logger.Info()
		if err != nil {
			ev = logger.Error().Err(err)
		}
		ev.Dur("uptime", time.Since(started)).Msg("Link stopped")
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.pump(gctx, cx, RoleAgent) })
	g.Go(func() error { return b.pump(gctx, cx, RoleClient) })
	for _, task := range b.tasks {
		task := task
		g.Go(func() error { return task(gctx, cx) })
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- g.Wait() }()

	select {
	case err = <-waitCh:
	case <-gctx.Done():
		// Closing the streams unblocks the pumps. Reads on a blocking stdin
		// cannot be interrupted, so give up on stragglers after a grace period.
		_ = client.Close()
		_ = agent.Close()
		select {
		case err = <-waitCh:
		case <-time.After(shutdownGrace):
			err = context.Cause(gctx)
			logger.Warn().Dur("grace", shutdownGrace).Msg("Link goroutines did not stop in time")
		}
	}
	_ = client.Close()
	_ = agent.Close()

	if errors.Is(err, errPeerClosed) {
		return nil
	}
	return err
}

// pump reads frames from one side and dispatches them in order.
func (b *Builder) pump(ctx context.Context, cx *Conn, from Role) error {
	stream := cx.streams[from]
	for {
		frame, err := stream.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				cx.logger.Info().Str("peer", from.String()).Msg("Peer closed the connection")
				return fmt.Errorf("%w: %s", errPeerClosed, from)
			}
			return fmt.Errorf("read from %s: %w", from, err)
		}

		msg, err := jsonrpc.Parse(frame)
		if err != nil {
			return fmt.Errorf("message from %s: %w", from, err)
		}

		if from == RoleClient {
			err = b.dispatchFromClient(ctx, cx, msg)
		} else {
			err = b.dispatchFromAgent(ctx, cx, msg)
		}
		if err != nil {
			return err
		}
	}
}

func (b *Builder) dispatchFromClient(ctx context.Context, cx *Conn, msg *jsonrpc.Message) error {
	if msg.Kind() == jsonrpc.KindRequest {
		if _, hooked := b.responses[msg.Method]; hooked {
			// Tracked before forwarding so the response cannot outrun it.
			cx.track(msg.IDKey(), msg.Method)
		}
	}

	return forward(ctx, cx, RoleClient, msg)
}

func (b *Builder) dispatchFromAgent(ctx context.Context, cx *Conn, msg *jsonrpc.Message) error {
	switch msg.Kind() {
	case jsonrpc.KindNotification:
		if h, ok := b.notifications[msg.Method]; ok {
			if err := h(ctx, cx, msg); err != nil {
				return fmt.Errorf("handle %s: %w", msg.Method, err)
			}
			return nil
		}

	case jsonrpc.KindResponse:
		if method, ok := cx.resolve(msg.IDKey()); ok {
			if h := b.responses[method]; h != nil {
				if err := h(ctx, cx, msg); err != nil {
					return fmt.Errorf("handle %s response: %w", method, err)
				}
				return forward(ctx, cx, RoleAgent, msg)
			}
		}
	}

	for _, hook := range b.beforeForward {
		if err := hook(ctx, cx, msg); err != nil {
			return fmt.Errorf("before forwarding %s: %w", msg.Kind(), err)
		}
	}

	return forward(ctx, cx, RoleAgent, msg)
}

// forward passes msg on to the side opposite from.
func forward(ctx context.Context, cx *Conn, from Role, msg *jsonrpc.Message) error {
	cx.logger.Debug().
		Str("from", from.String()).
		Str("kind", msg.Kind().String()).
		Str("method", msg.Method).
		Msg("Forwarding message")

	return cx.Send(ctx, from.Peer(), msg)
}
