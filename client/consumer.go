package client

import (
	"context"
	stderrors "errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/pulsekit/broker"
	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/message"
	"github.com/c360/pulsekit/metric"
)

// flowWindow is the number of delivery permits granted to the broker per
// consumer. Permits are replenished once half the window is consumed.
const flowWindow = 1000

// consumerCore is the behavior behind a Consumer handle
type consumerCore interface {
	Topic() string
	Subscription() string
	Receive(ctx context.Context) (*message.Message, error)
	Close() error
}

// Consumer receives messages from one topic under a named subscription. A
// handle whose creation failed is still a usable value: every operation on
// it reports ConsumerNotInitialized.
type Consumer struct {
	core consumerCore
}

// Topic returns the subscribed topic, or "" when the consumer never
// initialized.
func (c *Consumer) Topic() string {
	if c == nil || c.core == nil {
		return ""
	}
	return c.core.Topic()
}

// Subscription returns the subscription name
func (c *Consumer) Subscription() string {
	if c == nil || c.core == nil {
		return ""
	}
	return c.core.Subscription()
}

// Receive blocks until a message arrives, ctx fires, or the consumer dies
func (c *Consumer) Receive(ctx context.Context) (*message.Message, error) {
	if c == nil || c.core == nil {
		return nil, errors.Outcome(errors.ResultConsumerNotInitialized)
	}
	return c.core.Receive(ctx)
}

// Close releases the consumer's broker resources
func (c *Consumer) Close() error {
	if c == nil || c.core == nil {
		return errors.Outcome(errors.ResultConsumerNotInitialized)
	}
	return c.core.Close()
}

// topicConsumer receives from one concrete topic. Broker MESSAGE frames
// arrive on an internal frame channel; a pump goroutine decodes batch
// entries into logical messages and forwards them to out, which may be
// shared with sibling partition consumers.
//
// The pump holds only the consumerPump state, never the topicConsumer
// itself, so an abandoned handle stays collectible; a runtime cleanup on
// the handle stops the pump and releases the connection once the collector
// reclaims it.
type topicConsumer struct {
	conn         *broker.Connection
	topic        string
	subscription string
	consumerID   uint64
	closeTimeout time.Duration

	out chan *message.Message
	td  *consumerTeardown

	// closed is a separate allocation shared with the registry entry
	closed *atomic.Bool

	metrics *metric.Metrics
	logger  *slog.Logger
}

// consumerTeardown releases the broker-side wiring of one consumer exactly
// once, from Close or from the collector's cleanup of an abandoned handle.
// It must not reference the topicConsumer.
type consumerTeardown struct {
	once       sync.Once
	stop       chan struct{}
	conn       *broker.Connection
	consumerID uint64
}

func (t *consumerTeardown) release() {
	t.once.Do(func() {
		close(t.stop)
		t.conn.UnregisterConsumer(t.consumerID)
		t.conn.Release()
	})
}

// consumerPump is the decoding state of one consumer's pump goroutine,
// deliberately detached from the topicConsumer so the goroutine does not
// extend the handle's lifetime.
type consumerPump struct {
	conn       *broker.Connection
	topic      string
	consumerID uint64

	frames chan *broker.Frame
	out    chan *message.Message
	stop   chan struct{}

	delivered atomic.Uint32

	metrics *metric.Metrics
	logger  *slog.Logger
}

// newTopicConsumer subscribes to one concrete topic. out is the delivery
// channel to decode into; nil means the consumer owns its own. startID is
// non-nil for readers, which position explicitly instead of resuming a
// durable subscription.
func newTopicConsumer(
	ctx context.Context,
	c *Client,
	topic, subscription string,
	startID *message.MessageID,
	out chan *message.Message,
) (*topicConsumer, error) {
	conn, err := c.pool.GetConnection(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.SendRequest(ctx, &broker.Frame{
		Type:           broker.FrameSubscribe,
		Topic:          topic,
		Subscription:   subscription,
		StartMessageID: startID,
	})
	if err != nil {
		return nil, err
	}
	if resp.Type != broker.FrameSubscribeSuccess {
		return nil, errors.OutcomeWithCause(errors.ResultUnknownError, errors.ErrHandshakeFailed)
	}

	if out == nil {
		out = make(chan *message.Message, flowWindow)
	}
	logger := c.logger.With("component", "Consumer", "topic", topic, "subscription", subscription)
	pump := &consumerPump{
		conn:       conn,
		topic:      topic,
		consumerID: resp.ConsumerID,
		frames:     make(chan *broker.Frame, flowWindow),
		out:        out,
		stop:       make(chan struct{}),
		metrics:    c.metrics,
		logger:     logger,
	}
	tc := &topicConsumer{
		conn:         conn,
		topic:        topic,
		subscription: subscription,
		consumerID:   resp.ConsumerID,
		closeTimeout: c.cfg.OperationTimeout,
		out:          out,
		td: &consumerTeardown{
			stop:       pump.stop,
			conn:       conn,
			consumerID: resp.ConsumerID,
		},
		closed:  new(atomic.Bool),
		metrics: c.metrics,
		logger:  logger,
	}

	conn.Acquire()
	conn.RegisterConsumer(tc.consumerID, pump.frames)
	if err := conn.SendFrame(&broker.Frame{
		Type:       broker.FrameFlow,
		ConsumerID: tc.consumerID,
		Permits:    flowWindow,
	}); err != nil {
		tc.td.release()
		return nil, err
	}

	go pump.run()
	// A handle dropped without Close still stops its pump once collected
	runtime.AddCleanup(tc, func(td *consumerTeardown) { td.release() }, tc.td)
	return tc, nil
}

func (c *topicConsumer) Topic() string        { return c.topic }
func (c *topicConsumer) Subscription() string { return c.subscription }

// run decodes MESSAGE frames into logical messages until the consumer or
// its connection dies. One frame may carry a whole batch; every entry
// becomes its own message with the merged metadata view.
func (p *consumerPump) run() {
	for {
		select {
		case <-p.stop:
			return
		case <-p.conn.Done():
			return
		case f := <-p.frames:
			if f.MessageID == nil || f.Metadata == nil {
				p.logger.Debug("dropping malformed delivery frame")
				continue
			}
			for i, entry := range f.Entries {
				idx := int32(i)
				if len(f.Entries) == 1 {
					idx = -1
				}
				msg := message.FromBatchEntry(*f.MessageID, *f.Metadata, entry.Payload, entry.Meta, idx, p.topic)
				msg.SetRedeliveryCount(f.RedeliveryCount)
				if p.metrics != nil {
					p.metrics.EntriesDecoded.Inc()
				}
				select {
				case p.out <- msg:
				case <-p.stop:
					return
				case <-p.conn.Done():
					return
				}
			}
			p.replenish(uint32(len(f.Entries)))
		}
	}
}

// replenish grants the broker new permits once half the window is used
func (p *consumerPump) replenish(n uint32) {
	used := p.delivered.Add(n)
	if used < flowWindow/2 {
		return
	}
	p.delivered.Store(0)
	err := p.conn.SendFrame(&broker.Frame{
		Type:       broker.FrameFlow,
		ConsumerID: p.consumerID,
		Permits:    used,
	})
	if err != nil {
		p.logger.Debug("permit replenish failed", "error", err)
	}
}

func (c *topicConsumer) Receive(ctx context.Context) (*message.Message, error) {
	if c.closed.Load() {
		return nil, errors.Outcome(errors.ResultAlreadyClosed)
	}
	select {
	case msg := <-c.out:
		return msg, nil
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Outcome(errors.ResultTimeout)
		}
		return nil, errors.Outcome(errors.ResultDisconnected)
	case <-c.td.stop:
		return nil, errors.Outcome(errors.ResultAlreadyClosed)
	case <-c.conn.Done():
		return nil, errors.Outcome(errors.ResultDisconnected)
	}
}

func (c *topicConsumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return errors.Outcome(errors.ResultAlreadyClosed)
	}
	c.td.release()

	ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
	defer cancel()

	_, err := c.conn.SendRequest(ctx, &broker.Frame{
		Type:       broker.FrameCloseResource,
		ConsumerID: c.consumerID,
	})
	if err != nil && errors.ResultOf(err) != errors.ResultDisconnected {
		return err
	}
	c.logger.Debug("consumer closed")
	return nil
}
