package broker

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/pulsekit/errors"
)

// DefaultConnectTimeout bounds a single transport connect plus handshake
const DefaultConnectTimeout = 10 * time.Second

// ConnectionConfig carries the per-connection settings supplied by the pool
type ConnectionConfig struct {
	ConnectTimeout time.Duration
	ClientVersion  string
	ListenerName   string
	Codec          Codec
	Logger         *slog.Logger
}

func (cfg *ConnectionConfig) applyDefaults() {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Codec == nil {
		cfg.Codec = NewJSONCodec()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
}

// Connection is an owned, possibly shared transport session to one broker
// address. It multiplexes asynchronous request/response pairs over a single
// socket and routes broker-pushed MESSAGE frames to registered consumers.
//
// A Connection is shared by every resource targeting the same address and
// is reference-counted by usage via Acquire/Release; a forced Close is
// observed by all users as a Disconnected outcome on their in-flight and
// subsequent requests.
type Connection struct {
	addr   string
	cfg    ConnectionConfig
	logger *slog.Logger

	conn   net.Conn
	status atomic.Int32

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan *Frame

	consumersMu sync.RWMutex
	consumers   map[uint64]chan<- *Frame

	nextRequestID atomic.Uint64
	refs          atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

// Connect establishes a transport session to addr and performs the logical
// handshake. The connect timeout bounds the dial and the handshake together;
// exceeding it yields a ConnectError outcome. Cancelling ctx while the
// attempt is outstanding yields Disconnected (cancellation) or Timeout
// (deadline), so an operation timer racing the connect timer keeps its own
// identity in the reported outcome.
func Connect(ctx context.Context, addr string, cfg ConnectionConfig) (*Connection, error) {
	cfg.applyDefaults()

	c := &Connection{
		addr:      addr,
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "Connection", "addr", addr),
		pending:   make(map[uint64]chan *Frame),
		consumers: make(map[uint64]chan<- *Frame),
		done:      make(chan struct{}),
	}
	c.setStatus(StatusConnecting)

	// One deadline bounds the dial and the handshake together, so a slow
	// dial cannot grant the handshake a fresh full-length timer.
	deadline := time.Now().Add(cfg.ConnectTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		c.setStatus(StatusFailed)
		return nil, connectOutcome(ctx, err)
	}
	c.conn = conn

	// Handshake in a goroutine so a dying client can abandon the attempt
	// even when the broker black-holes the socket after accepting it.
	handshakeErr := make(chan error, 1)
	go func() { handshakeErr <- c.handshake(deadline) }()

	select {
	case <-ctx.Done():
		conn.Close()
		<-handshakeErr
		c.setStatus(StatusFailed)
		return nil, connectOutcome(ctx, ctx.Err())
	case err := <-handshakeErr:
		if err != nil {
			conn.Close()
			c.setStatus(StatusFailed)
			return nil, err
		}
	}

	c.setStatus(StatusReady)
	c.logger.Debug("broker connection established")
	go c.readLoop()
	return c, nil
}

// handshake sends CONNECT and waits for CONNECTED within the remainder of
// the connect deadline the dial already consumed part of.
func (c *Connection) handshake(deadline time.Time) error {
	if err := c.conn.SetDeadline(deadline); err != nil {
		return errors.OutcomeWithCause(errors.ResultConnectError, err)
	}
	defer c.conn.SetDeadline(time.Time{})

	connect := &Frame{
		Type:          FrameConnect,
		ClientVersion: c.cfg.ClientVersion,
		ListenerName:  c.cfg.ListenerName,
	}
	if err := c.cfg.Codec.Encode(c.conn, connect); err != nil {
		return errors.OutcomeWithCause(errors.ResultConnectError, err)
	}

	f, err := c.cfg.Codec.Decode(c.conn)
	if err != nil {
		return errors.OutcomeWithCause(errors.ResultConnectError, err)
	}

	switch f.Type {
	case FrameConnected:
		return nil
	case FrameError:
		return errors.OutcomeWithCause(errors.ParseResult(f.Error), stderrors.New(f.Reason))
	default:
		return errors.OutcomeWithCause(errors.ResultConnectError, errors.ErrHandshakeFailed)
	}
}

// connectOutcome categorizes a failed connection attempt. The caller's
// context takes precedence: a cancelled client reports Disconnected and an
// elapsed operation timer reports Timeout, regardless of the transport
// error the abort surfaced as.
func connectOutcome(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		return errors.OutcomeWithCause(errors.ResultDisconnected, err)
	case context.DeadlineExceeded:
		return errors.OutcomeWithCause(errors.ResultTimeout, err)
	}
	return errors.OutcomeWithCause(errors.ResultConnectError, err)
}

// Addr returns the broker address this connection is bound to
func (c *Connection) Addr() string {
	return c.addr
}

// Status returns the current connection status
func (c *Connection) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Connection) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
}

// IsReady reports whether the connection can carry requests
func (c *Connection) IsReady() bool {
	return c.Status() == StatusReady
}

// Acquire records one more resource using this connection
func (c *Connection) Acquire() {
	c.refs.Add(1)
}

// Release records that a resource stopped using this connection. The
// connection stays pooled for reuse; only Close tears it down.
func (c *Connection) Release() {
	if c.refs.Add(-1) < 0 {
		c.refs.Store(0)
	}
}

// Refs returns the number of resources currently using the connection
func (c *Connection) Refs() int32 {
	return c.refs.Load()
}

// SendRequest writes a frame and waits for the broker's response to it.
// The wait ends when the response arrives, ctx fires, or the connection
// dies; the returned error is always a categorized outcome. A broker ERROR
// frame is surfaced as the outcome it names.
func (c *Connection) SendRequest(ctx context.Context, f *Frame) (*Frame, error) {
	if !c.IsReady() {
		return nil, errors.Outcome(errors.ResultDisconnected)
	}

	requestID := c.nextRequestID.Add(1)
	f.RequestID = requestID

	respCh := make(chan *Frame, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = respCh
	c.pendingMu.Unlock()

	if err := c.writeFrame(f); err != nil {
		c.dropPending(requestID)
		return nil, errors.OutcomeWithCause(errors.ResultDisconnected, err)
	}

	select {
	case resp := <-respCh:
		if resp.Type == FrameError {
			return nil, errors.OutcomeWithCause(errors.ParseResult(resp.Error), stderrors.New(resp.Reason))
		}
		return resp, nil
	case <-ctx.Done():
		c.dropPending(requestID)
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Outcome(errors.ResultTimeout)
		}
		return nil, errors.Outcome(errors.ResultDisconnected)
	case <-c.done:
		return nil, errors.Outcome(errors.ResultDisconnected)
	}
}

// SendFrame writes a frame without expecting a response (e.g. FLOW permits)
func (c *Connection) SendFrame(f *Frame) error {
	if !c.IsReady() {
		return errors.Outcome(errors.ResultDisconnected)
	}
	if err := c.writeFrame(f); err != nil {
		return errors.OutcomeWithCause(errors.ResultDisconnected, err)
	}
	return nil
}

func (c *Connection) writeFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.cfg.Codec.Encode(c.conn, f)
}

func (c *Connection) dropPending(requestID uint64) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}

// RegisterConsumer routes broker-pushed MESSAGE frames for consumerID to ch
func (c *Connection) RegisterConsumer(consumerID uint64, ch chan<- *Frame) {
	c.consumersMu.Lock()
	c.consumers[consumerID] = ch
	c.consumersMu.Unlock()
}

// UnregisterConsumer stops routing MESSAGE frames for consumerID
func (c *Connection) UnregisterConsumer(consumerID uint64) {
	c.consumersMu.Lock()
	delete(c.consumers, consumerID)
	c.consumersMu.Unlock()
}

// readLoop is the single reader of the socket. It dispatches responses to
// their pending waiters and pushes deliveries to registered consumers until
// the connection dies, then lets every waiter observe Disconnected through
// the done channel.
func (c *Connection) readLoop() {
	defer close(c.done)

	for {
		f, err := c.cfg.Codec.Decode(c.conn)
		if err != nil {
			if c.Status() != StatusClosed {
				c.setStatus(StatusFailed)
				c.logger.Debug("broker connection lost", "error", err)
			}
			return
		}

		switch f.Type {
		case FrameMessage:
			c.consumersMu.RLock()
			ch := c.consumers[f.ConsumerID]
			c.consumersMu.RUnlock()
			if ch == nil {
				continue
			}
			select {
			case ch <- f:
			default:
				// Receiver queue full; the broker re-delivers on ack timeout
				c.logger.Debug("dropping delivery for slow consumer", "consumer_id", f.ConsumerID)
			}
		default:
			c.pendingMu.Lock()
			respCh, ok := c.pending[f.RequestID]
			if ok {
				delete(c.pending, f.RequestID)
			}
			c.pendingMu.Unlock()
			if ok {
				respCh <- f
			} else {
				c.logger.Debug("response for unknown request", "type", f.Type, "request_id", f.RequestID)
			}
		}
	}
}

// Done is closed once the connection is no longer usable
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close tears down the transport session. Safe to call more than once.
// Every user of the shared connection observes the closure as Disconnected.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.setStatus(StatusClosed)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
