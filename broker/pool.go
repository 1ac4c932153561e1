package broker

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/metric"
	"github.com/c360/pulsekit/pkg/retry"
)

// PoolConfig carries the connection settings shared by all connections a
// pool creates.
type PoolConfig struct {
	ConnectTimeout time.Duration
	ClientVersion  string
	ListenerName   string
	Codec          Codec
	Logger         *slog.Logger

	// ConnectRetry governs how many full sweeps over the address list one
	// acquisition performs before giving up. The default is a single sweep;
	// each sweep already falls back through every configured address.
	ConnectRetry retry.Config

	// Metrics is optional; when set the pool records connect attempts,
	// lookups and open-connection counts.
	Metrics *metric.Metrics
}

// Pool owns the broker connections of one client session. Connections are
// keyed by address and shared by every resource that targets the same
// broker; acquisition walks the AddressSelector's candidates so the session
// fails over between configured addresses.
type Pool struct {
	cfg      PoolConfig
	selector *AddressSelector
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*Connection

	closed atomic.Bool
}

// NewPool creates a connection pool over the given address selector
func NewPool(selector *AddressSelector, cfg PoolConfig) *Pool {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Codec == nil {
		cfg.Codec = NewJSONCodec()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ConnectRetry.MaxAttempts == 0 {
		cfg.ConnectRetry = retry.Single()
	}
	return &Pool{
		cfg:      cfg,
		selector: selector,
		logger:   cfg.Logger.With("component", "Pool"),
		conns:    make(map[string]*Connection),
	}
}

// GetConnection returns a ready connection to some configured broker
// address, reusing a pooled one when possible. ctx bounds the whole
// acquisition (the caller's operation timer); each individual attempt is
// additionally bounded by the pool's connect timeout.
func (p *Pool) GetConnection(ctx context.Context) (*Connection, error) {
	if p.closed.Load() {
		return nil, errors.Outcome(errors.ResultDisconnected)
	}
	conn, err := retry.DoWithResult(ctx, p.cfg.ConnectRetry, func() (*Connection, error) {
		return p.sweep(ctx)
	})
	if err != nil {
		var nre *retry.NonRetryableError
		if stderrors.As(err, &nre) {
			return nil, nre.Err
		}
		return nil, err
	}
	return conn, nil
}

// sweep tries every candidate address once, starting from the last
// known-good one.
func (p *Pool) sweep(ctx context.Context) (*Connection, error) {
	var lastErr error

	for _, addr := range p.selector.Candidates() {
		if p.closed.Load() {
			return nil, retry.NonRetryable(errors.Outcome(errors.ResultDisconnected))
		}

		if conn := p.cached(addr); conn != nil {
			return conn, nil
		}

		conn, err := Connect(ctx, addr, ConnectionConfig{
			ConnectTimeout: p.cfg.ConnectTimeout,
			ClientVersion:  p.cfg.ClientVersion,
			ListenerName:   p.cfg.ListenerName,
			Codec:          p.cfg.Codec,
			Logger:         p.cfg.Logger,
		})
		p.countAttempt(err)
		if err != nil {
			lastErr = err
			switch errors.ResultOf(err) {
			case errors.ResultTimeout, errors.ResultDisconnected:
				// The operation timer fired or the client is shutting
				// down; further candidates cannot change the outcome.
				return nil, retry.NonRetryable(err)
			}
			p.logger.Debug("connect attempt failed", "addr", addr, "error", err)
			continue
		}

		if err := p.adopt(addr, conn); err != nil {
			return nil, retry.NonRetryable(err)
		}
		p.selector.MarkGood(addr)
		return conn, nil
	}

	if lastErr == nil {
		lastErr = errors.Wrap(errors.ErrNoAddresses, "Pool", "sweep", "candidate iteration")
	}
	// An attempt that already carries a categorized outcome (a broker ERROR
	// frame during the handshake names one) keeps it; only uncategorized
	// transport failures are folded into ConnectError.
	if errors.ResultOf(lastErr) != errors.ResultUnknownError {
		return nil, lastErr
	}
	return nil, errors.OutcomeWithCause(errors.ResultConnectError, lastErr)
}

// cached returns a pooled ready connection for addr, pruning dead ones
func (p *Pool) cached(addr string) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[addr]
	if !ok {
		return nil
	}
	if !conn.IsReady() {
		delete(p.conns, addr)
		p.setOpenGauge(len(p.conns))
		conn.Close()
		return nil
	}
	return conn
}

// adopt stores a freshly established connection, unless the pool was
// closed while the attempt was in flight.
func (p *Pool) adopt(addr string, conn *Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		conn.Close()
		return errors.Outcome(errors.ResultDisconnected)
	}
	if existing, ok := p.conns[addr]; ok && existing.IsReady() {
		// A concurrent acquisition won the race; keep the established one
		conn.Close()
		return nil
	}
	p.conns[addr] = conn
	p.setOpenGauge(len(p.conns))
	return nil
}

// LookupPartitions asks a broker for the partition count of a topic.
// Returns 0 for non-partitioned topics. Failures propagate as
// connection/timeout outcomes.
func (p *Pool) LookupPartitions(ctx context.Context, topic string) (uint32, error) {
	conn, err := p.GetConnection(ctx)
	if err != nil {
		return 0, err
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.LookupRequests.Inc()
	}
	resp, err := conn.SendRequest(ctx, &Frame{Type: FrameLookup, Topic: topic})
	if err != nil {
		return 0, err
	}
	if resp.Type != FrameLookupResponse {
		return 0, errors.Outcome(errors.ResultLookupError)
	}
	return resp.Partitions, nil
}

// Closed reports whether the pool has been shut down
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// Close tears down every pooled connection. In-flight and subsequent
// acquisitions complete with Disconnected.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Connection)
	p.setOpenGauge(0)
	p.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	p.logger.Debug("connection pool closed", "connections", len(conns))
}

func (p *Pool) countAttempt(err error) {
	if p.cfg.Metrics == nil {
		return
	}
	p.cfg.Metrics.ConnectAttempts.WithLabelValues(errors.ResultOf(err).String()).Inc()
}

func (p *Pool) setOpenGauge(n int) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ConnectionsOpen.Set(float64(n))
	}
}
