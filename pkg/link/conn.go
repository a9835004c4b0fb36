package link

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harun/decaf/internal/metrics"
	"github.com/harun/decaf/pkg/jsonrpc"
	"github.com/harun/decaf/pkg/transport"
	"github.com/rs/zerolog"
)

// Conn is the handle handlers and tasks use to talk to either side of a
// running link.
type Conn struct {
	name    string
	streams [2]transport.Stream
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
	// request id -> method, for client requests whose response is hooked
	pending map[string]string
}

func newConn(name string, client, agent transport.Stream, logger zerolog.Logger, m *metrics.Metrics) *Conn {
	c := &Conn{
		name:    name,
		logger:  logger,
		metrics: m,
		pending: make(map[string]string),
	}
	c.streams[RoleClient] = client
	c.streams[RoleAgent] = agent
	return c
}

// Name returns the link name.
func (c *Conn) Name() string {
	return c.name
}

// Logger returns the link's logger.
func (c *Conn) Logger() zerolog.Logger {
	return c.logger
}

// Send writes msg to the given side. Errors are fatal for the link.
func (c *Conn) Send(ctx context.Context, to Role, msg *jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}

	if err := c.streams[to].WriteFrame(data); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Kind(), to, err)
	}

	c.metrics.ObserveForward(to.String(), msg.Kind().String())
	return nil
}

// SendNotification sends a notification with raw params to the given side.
func (c *Conn) SendNotification(ctx context.Context, to Role, method string, params json.RawMessage) error {
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.Send(ctx, to, msg)
}

func (c *Conn) track(id, method string) {
	c.mu.Lock()
	c.pending[id] = method
	c.mu.Unlock()
}

func (c *Conn) resolve(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	method, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return method, ok
}

// PendingRequests returns how many hooked client requests await a response.
func (c *Conn) PendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
