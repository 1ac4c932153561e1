package client

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/pulsekit/broker"
	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/message"
	"github.com/c360/pulsekit/metric"
)

// producerCore is the behavior behind a Producer handle. Single-partition
// producers and the partitioned coordinator both implement it.
type producerCore interface {
	Topic() string
	Name() string
	Send(ctx context.Context, msg *message.Message) (message.MessageID, error)
	Flush(ctx context.Context) error
	Close() error
}

// Producer publishes messages to one topic. A handle whose creation failed
// is still a usable value: every operation on it reports
// ProducerNotInitialized instead of panicking.
type Producer struct {
	core producerCore
}

// Topic returns the topic the producer publishes to, or "" when the
// producer never initialized.
func (p *Producer) Topic() string {
	if p == nil || p.core == nil {
		return ""
	}
	return p.core.Topic()
}

// Name returns the producer name assigned at creation
func (p *Producer) Name() string {
	if p == nil || p.core == nil {
		return ""
	}
	return p.core.Name()
}

// Send publishes msg and returns the broker-assigned id. On success the id
// is also late-bound onto msg.
func (p *Producer) Send(ctx context.Context, msg *message.Message) (message.MessageID, error) {
	if p == nil || p.core == nil {
		return message.InvalidMessageID(), errors.Outcome(errors.ResultProducerNotInitialized)
	}
	return p.core.Send(ctx, msg)
}

// Flush blocks until every outstanding publish is acknowledged
func (p *Producer) Flush(ctx context.Context) error {
	if p == nil || p.core == nil {
		return errors.Outcome(errors.ResultProducerNotInitialized)
	}
	return p.core.Flush(ctx)
}

// Close releases the producer's broker resources
func (p *Producer) Close() error {
	if p == nil || p.core == nil {
		return errors.Outcome(errors.ResultProducerNotInitialized)
	}
	return p.core.Close()
}

// topicProducer publishes to one concrete topic (a partition, for
// partitioned topics) over a shared broker connection.
type topicProducer struct {
	conn       *broker.Connection
	topic      string
	name       string
	producerID uint64
	opTimeout  time.Duration

	// life is cancelled by Close so an in-flight send completes with
	// AlreadyClosed instead of waiting out its timer.
	life  context.Context
	abort context.CancelFunc

	// closed is a separate allocation shared with the registry entry
	closed *atomic.Bool
	seq    atomic.Uint64

	metrics *metric.Metrics
	logger  *slog.Logger
}

// newTopicProducer creates a producer for one concrete topic. ctx carries
// the operation timer of the originating create call.
func newTopicProducer(ctx context.Context, c *Client, topic, name string) (*topicProducer, error) {
	conn, err := c.pool.GetConnection(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.SendRequest(ctx, &broker.Frame{
		Type:         broker.FrameCreateProducer,
		Topic:        topic,
		ProducerName: name,
	})
	if err != nil {
		return nil, err
	}
	if resp.Type != broker.FrameProducerSuccess {
		return nil, errors.OutcomeWithCause(errors.ResultUnknownError, errors.ErrHandshakeFailed)
	}
	if resp.ProducerName != "" {
		name = resp.ProducerName
	}

	conn.Acquire()
	life, abort := context.WithCancel(context.Background())
	return &topicProducer{
		conn:       conn,
		topic:      topic,
		name:       name,
		producerID: resp.ProducerID,
		opTimeout:  c.cfg.OperationTimeout,
		life:       life,
		abort:      abort,
		closed:     new(atomic.Bool),
		metrics:    c.metrics,
		logger:     c.logger.With("component", "Producer", "topic", topic),
	}, nil
}

func (p *topicProducer) Topic() string { return p.topic }
func (p *topicProducer) Name() string  { return p.name }

func (p *topicProducer) Send(ctx context.Context, msg *message.Message) (message.MessageID, error) {
	if p.closed.Load() {
		return message.InvalidMessageID(), errors.Outcome(errors.ResultAlreadyClosed)
	}

	// The operation timer bounds the publish, and closing the producer
	// aborts it early; a broker that swallows the SEND cannot hang a send.
	sendCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	unhook := context.AfterFunc(p.life, cancel)
	defer unhook()

	meta := msg.Meta()
	if meta.ProducerName == "" {
		meta.ProducerName = p.name
	}
	if meta.SequenceID == nil {
		seq := p.seq.Add(1) - 1
		meta.SequenceID = &seq
	}

	resp, err := p.conn.SendRequest(sendCtx, &broker.Frame{
		Type:       broker.FrameSend,
		ProducerID: p.producerID,
		Topic:      p.topic,
		Metadata:   &meta,
		Entries: []broker.BatchEntry{{
			Payload: msg.Data(),
			Meta: message.EntryMeta{
				PartitionKey: meta.PartitionKey,
				OrderingKey:  meta.OrderingKey,
				EventTime:    meta.EventTime,
				SequenceID:   meta.SequenceID,
				Properties:   meta.Properties,
			},
		}},
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.SendFailures.Inc()
		}
		if p.closed.Load() {
			return message.InvalidMessageID(),
				errors.OutcomeWithCause(errors.ResultAlreadyClosed, errors.ErrResourceClosed)
		}
		return message.InvalidMessageID(), err
	}
	if resp.Type != broker.FrameSendReceipt || resp.MessageID == nil {
		if p.metrics != nil {
			p.metrics.SendFailures.Inc()
		}
		return message.InvalidMessageID(), errors.Outcome(errors.ResultUnknownError)
	}

	if p.metrics != nil {
		p.metrics.MessagesSent.Inc()
	}
	msg.BindID(*resp.MessageID)
	return *resp.MessageID, nil
}

// Flush verifies the producer is still usable. Publishes are acknowledged
// synchronously per send, so there is no buffered backlog to drain.
func (p *topicProducer) Flush(_ context.Context) error {
	if p.closed.Load() {
		return errors.Outcome(errors.ResultAlreadyClosed)
	}
	return nil
}

func (p *topicProducer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return errors.Outcome(errors.ResultAlreadyClosed)
	}
	// Unblock any send still waiting on a broker response
	p.abort()

	ctx, cancel := context.WithTimeout(context.Background(), p.opTimeout)
	defer cancel()

	_, err := p.conn.SendRequest(ctx, &broker.Frame{
		Type:       broker.FrameCloseResource,
		ProducerID: p.producerID,
	})
	p.conn.Release()
	if err != nil && errors.ResultOf(err) != errors.ResultDisconnected {
		return err
	}
	p.logger.Debug("producer closed", "name", p.name)
	return nil
}
