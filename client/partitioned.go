package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/message"
)

// partitionName returns the concrete topic name of one partition
func partitionName(topic string, i int) string {
	return fmt.Sprintf("%s-partition-%d", topic, i)
}

// partitionedProducer fans publishes out over the per-partition producers
// of one partitioned topic. Creation is all-or-nothing: when any partition
// fails, the already created siblings are torn down and the whole create
// reports that failure. Each child is registered individually, so a
// partitioned producer contributes its partition count to NumProducers.
type partitionedProducer struct {
	topic    string
	name     string
	children []*topicProducer

	rr     atomic.Uint64
	closed atomic.Bool
}

// newPartitionedProducer creates one producer per partition in parallel.
// ctx carries the operation timer; its expiry aborts the remaining creates
// and tears down the finished ones.
func newPartitionedProducer(ctx context.Context, c *Client, topic, name string, partitions int) (*partitionedProducer, error) {
	children := make([]*topicProducer, partitions)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < partitions; i++ {
		g.Go(func() error {
			tp, err := newTopicProducer(gctx, c, partitionName(topic, i), name)
			if err != nil {
				return err
			}
			children[i] = tp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, child := range children {
			if child != nil {
				child.Close()
			}
		}
		return nil, err
	}

	return &partitionedProducer{
		topic:    topic,
		name:     name,
		children: children,
	}, nil
}

func (p *partitionedProducer) Topic() string { return p.topic }
func (p *partitionedProducer) Name() string  { return p.name }

// route picks the target partition: keyed messages hash on the partition
// key so a key always lands on the same partition, unkeyed messages rotate.
func (p *partitionedProducer) route(msg *message.Message) *topicProducer {
	if msg.HasPartitionKey() {
		h := fnv.New32a()
		h.Write([]byte(msg.PartitionKey()))
		return p.children[h.Sum32()%uint32(len(p.children))]
	}
	return p.children[p.rr.Add(1)%uint64(len(p.children))]
}

func (p *partitionedProducer) Send(ctx context.Context, msg *message.Message) (message.MessageID, error) {
	if p.closed.Load() {
		return message.InvalidMessageID(), errors.Outcome(errors.ResultAlreadyClosed)
	}
	return p.route(msg).Send(ctx, msg)
}

func (p *partitionedProducer) Flush(ctx context.Context) error {
	if p.closed.Load() {
		return errors.Outcome(errors.ResultAlreadyClosed)
	}
	for _, child := range p.children {
		if err := child.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every partition, best effort, and surfaces the first
// failure after all partitions were attempted.
func (p *partitionedProducer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return errors.Outcome(errors.ResultAlreadyClosed)
	}
	var firstErr error
	for _, child := range p.children {
		if err := child.Close(); err != nil && firstErr == nil &&
			errors.ResultOf(err) != errors.ResultAlreadyClosed {
			firstErr = err
		}
	}
	return firstErr
}

// partitionedConsumer merges the deliveries of per-partition consumers
// into one receive stream. The same all-or-nothing creation and aggregate
// close rules as the partitioned producer apply.
type partitionedConsumer struct {
	topic        string
	subscription string
	children     []*topicConsumer
	out          chan *message.Message

	stop   chan struct{}
	closed atomic.Bool
}

// newPartitionedConsumer subscribes to every partition in parallel,
// decoding all of them into one shared delivery channel.
func newPartitionedConsumer(ctx context.Context, c *Client, topic, subscription string, partitions int) (*partitionedConsumer, error) {
	out := make(chan *message.Message, flowWindow)
	children := make([]*topicConsumer, partitions)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < partitions; i++ {
		g.Go(func() error {
			tc, err := newTopicConsumer(gctx, c, partitionName(topic, i), subscription, nil, out)
			if err != nil {
				return err
			}
			children[i] = tc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, child := range children {
			if child != nil {
				child.Close()
			}
		}
		return nil, err
	}

	return &partitionedConsumer{
		topic:        topic,
		subscription: subscription,
		children:     children,
		out:          out,
		stop:         make(chan struct{}),
	}, nil
}

func (c *partitionedConsumer) Topic() string        { return c.topic }
func (c *partitionedConsumer) Subscription() string { return c.subscription }

func (c *partitionedConsumer) Receive(ctx context.Context) (*message.Message, error) {
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
	case <-c.stop:
		return nil, errors.Outcome(errors.ResultAlreadyClosed)
	}
}

func (c *partitionedConsumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return errors.Outcome(errors.ResultAlreadyClosed)
	}
	close(c.stop)
	var firstErr error
	for _, child := range c.children {
		if err := child.Close(); err != nil && firstErr == nil &&
			errors.ResultOf(err) != errors.ResultAlreadyClosed {
			firstErr = err
		}
	}
	return firstErr
}
