package client

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/message"
	"github.com/c360/pulsekit/testutil"
)

func newTestClient(t *testing.T, stub *testutil.StubBroker, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithConnectionTimeout(2 * time.Second),
		WithOperationTimeout(5 * time.Second),
		WithSweepInterval(50 * time.Millisecond),
	}, opts...)
	c, err := NewClient(stub.ServiceURL(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// TestIdentityString verifies the version string with and without a description
func TestIdentityString(t *testing.T) {
	assert.Equal(t, "Pulsekit-Go-v"+Version, identity(""))
	assert.Equal(t, "Pulsekit-Go-v"+Version+"-edge-ingest", identity("edge-ingest"))
}

// TestIdentityReachesBroker asserts the handshake carries the identity string
func TestIdentityReachesBroker(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub, WithDescription("edge"))
	p, err := c.CreateProducer(context.Background(), "orders")
	require.NoError(t, err)
	defer p.Close()

	assert.Contains(t, stub.ClientVersions(), c.Identity())
	assert.Equal(t, "Pulsekit-Go-v"+Version+"-edge", c.Identity())
}

// TestInvalidConfiguration rejects bad service URLs at construction
func TestInvalidConfiguration(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.Equal(t, errors.ResultInvalidConfiguration, errors.ResultOf(err))

	_, err = NewClient("nats://localhost:4222")
	require.Error(t, err)
	assert.Equal(t, errors.ResultInvalidConfiguration, errors.ResultOf(err))
}

// TestProducerRoundTrip publishes and receives through a subscription
func TestProducerRoundTrip(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub)
	ctx := context.Background()

	consumer, err := c.Subscribe(ctx, "orders", "workers")
	require.NoError(t, err)
	defer consumer.Close()

	producer, err := c.CreateProducer(ctx, "orders")
	require.NoError(t, err)
	defer producer.Close()

	msg := message.New(message.Metadata{
		Properties: map[string]string{"kind": "order"},
	}, []byte("payload-1"))
	assert.False(t, msg.ID().Valid())

	id, err := producer.Send(ctx, msg)
	require.NoError(t, err)
	assert.True(t, id.Valid())
	// The broker-assigned id was late-bound onto the sent message
	assert.Equal(t, id, msg.ID())

	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	got, err := consumer.Receive(rctx)
	require.NoError(t, err)

	assert.Equal(t, "payload-1", got.DataAsString())
	assert.Equal(t, "order", got.Property("kind"))
	assert.Equal(t, "orders", got.TopicName())
	assert.True(t, got.Equals(msg))
}

// TestPartitionedProducerCounts verifies per-partition registration and the
// immediate count drop on close.
func TestPartitionedProducerCounts(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetPartitions("orders", 2)

	c := newTestClient(t, stub)

	p, err := c.CreateProducer(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, c.NumProducers())
	assert.Equal(t, "orders", p.Topic())

	require.NoError(t, p.Close())
	require.Eventually(t, func() bool {
		return c.NumProducers() == 0
	}, 3*time.Second, 20*time.Millisecond)
}

// TestConsumerAndReaderCounts verifies readers count as consumers
func TestConsumerAndReaderCounts(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub)
	ctx := context.Background()

	consumer, err := c.Subscribe(ctx, "orders", "workers")
	require.NoError(t, err)
	assert.Equal(t, 1, c.NumConsumers())

	reader, err := c.CreateReader(ctx, "audit", message.EarliestMessageID())
	require.NoError(t, err)
	assert.Equal(t, 2, c.NumConsumers())
	assert.Equal(t, 0, c.NumProducers())

	require.NoError(t, consumer.Close())
	require.NoError(t, reader.Close())
	require.Eventually(t, func() bool {
		return c.NumConsumers() == 0
	}, 3*time.Second, 20*time.Millisecond)
}

// TestPartitionedRoundTrip fans out over partitions and merges deliveries
func TestPartitionedRoundTrip(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetPartitions("orders", 3)

	c := newTestClient(t, stub)
	ctx := context.Background()

	consumer, err := c.Subscribe(ctx, "orders", "workers")
	require.NoError(t, err)
	defer consumer.Close()
	assert.Equal(t, 3, c.NumConsumers())

	producer, err := c.CreateProducer(ctx, "orders")
	require.NoError(t, err)
	defer producer.Close()

	sent := map[string]bool{}
	for i := 0; i < 6; i++ {
		msg := message.New(message.Metadata{}, []byte{byte('a' + i)})
		_, err := producer.Send(ctx, msg)
		require.NoError(t, err)
		sent[msg.DataAsString()] = false
	}

	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for i := 0; i < 6; i++ {
		got, err := consumer.Receive(rctx)
		require.NoError(t, err)
		sent[got.DataAsString()] = true
	}
	for payload, seen := range sent {
		assert.True(t, seen, "payload %q never delivered", payload)
	}
}

// TestKeyedRoutingIsSticky sends keyed messages to a stable partition
func TestKeyedRoutingIsSticky(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetPartitions("orders", 4)

	c := newTestClient(t, stub)
	ctx := context.Background()

	producer, err := c.CreateProducer(ctx, "orders")
	require.NoError(t, err)
	defer producer.Close()

	pp, ok := producer.core.(*partitionedProducer)
	require.True(t, ok)

	key := "customer-42"
	first := pp.route(message.New(message.Metadata{PartitionKey: &key}, nil))
	for i := 0; i < 10; i++ {
		assert.Same(t, first, pp.route(message.New(message.Metadata{PartitionKey: &key}, nil)))
	}
}

// TestServiceUnitNotReady fails creates against an unprovisioned listener
// and leaves an inert handle behind.
func TestServiceUnitNotReady(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetRequiredListener("internal")

	c := newTestClient(t, stub)
	ctx := context.Background()

	consumer, err := c.Subscribe(ctx, "orders", "workers")
	require.Error(t, err)
	assert.Equal(t, errors.ResultServiceUnitNotReady, errors.ResultOf(err))
	assert.Equal(t, 0, c.NumConsumers())

	// The handle is inert, not nil
	require.NotNil(t, consumer)
	_, err = consumer.Receive(ctx)
	assert.Equal(t, errors.ResultConsumerNotInitialized, errors.ResultOf(err))
	err = consumer.Close()
	assert.Equal(t, errors.ResultConsumerNotInitialized, errors.ResultOf(err))

	producer, err := c.CreateProducer(ctx, "orders")
	require.Error(t, err)
	assert.Equal(t, errors.ResultServiceUnitNotReady, errors.ResultOf(err))
	err = producer.Close()
	assert.Equal(t, errors.ResultProducerNotInitialized, errors.ResultOf(err))

	// The provisioned listener name makes the same create succeed
	c2 := newTestClient(t, stub, WithListenerName("internal"))
	p2, err := c2.CreateProducer(ctx, "orders")
	require.NoError(t, err)
	require.NoError(t, p2.Close())
}

// TestCloseDuringBlackHoledConnect verifies a closing client aborts a
// stuck connect attempt with Disconnected, not Timeout or ConnectError.
func TestCloseDuringBlackHoledConnect(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetBlackHole(true)

	c, err := NewClient(stub.ServiceURL(),
		WithConnectionTimeout(10*time.Second),
		WithOperationTimeout(10*time.Second))
	require.NoError(t, err)

	results := c.CreateProducerAsync("orders")
	time.Sleep(100 * time.Millisecond)
	c.Close()

	select {
	case res := <-results:
		require.Error(t, res.Err)
		assert.Equal(t, errors.ResultDisconnected, errors.ResultOf(res.Err))
		// The handle is inert
		err := res.Producer.Close()
		assert.Equal(t, errors.ResultProducerNotInitialized, errors.ResultOf(err))
	case <-time.After(3 * time.Second):
		t.Fatal("pending create did not observe client close")
	}
}

// TestOperationTimeoutDuringBlackHoledConnect verifies the operation timer
// fires as Timeout while the connect timer is still running.
func TestOperationTimeoutDuringBlackHoledConnect(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetBlackHole(true)

	c, err := NewClient(stub.ServiceURL(),
		WithConnectionTimeout(10*time.Second),
		WithOperationTimeout(200*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	_, err = c.CreateProducer(context.Background(), "orders")
	require.Error(t, err)
	assert.Equal(t, errors.ResultTimeout, errors.ResultOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

// TestClosedClientCreates fail with AlreadyClosed and touch no network
func TestClosedClientCreates(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)

	c := newTestClient(t, stub)
	require.NoError(t, c.Close())
	stub.Close()

	_, err = c.CreateProducer(context.Background(), "orders")
	assert.Equal(t, errors.ResultAlreadyClosed, errors.ResultOf(err))
	_, err = c.Subscribe(context.Background(), "orders", "workers")
	assert.Equal(t, errors.ResultAlreadyClosed, errors.ResultOf(err))

	err = c.Close()
	assert.Equal(t, errors.ResultAlreadyClosed, errors.ResultOf(err))
	assert.True(t, c.Stats().Closed)
}

// TestClientCloseTearsDownResources closes registered resources with the session
func TestClientCloseTearsDownResources(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetPartitions("orders", 2)

	c := newTestClient(t, stub)
	ctx := context.Background()

	_, err = c.CreateProducer(ctx, "orders")
	require.NoError(t, err)
	consumer, err := c.Subscribe(ctx, "audit", "workers")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.NumProducers())
	assert.Equal(t, 0, c.NumConsumers())

	// Resources were closed by the session, a second close is redundant
	err = consumer.Close()
	assert.Equal(t, errors.ResultAlreadyClosed, errors.ResultOf(err))
}

// TestClientFailover creates resources through the second address when the
// first is dead, and records it as last known-good.
func TestClientFailover(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	dead, err := testutil.NewStubBroker()
	require.NoError(t, err)
	dead.Close()

	c, err := NewClient("pulse://"+dead.Addr()+","+stub.Addr(),
		WithConnectionTimeout(2*time.Second),
		WithOperationTimeout(10*time.Second))
	require.NoError(t, err)
	defer c.Close()

	p, err := c.CreateProducer(context.Background(), "orders")
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, stub.Addr(), c.selector.Candidates()[0])

	// Forcing the cursor back to the dead address still succeeds by
	// falling through to the live one
	c.selector.ForceIndex(0)
	p2, err := c.CreateProducer(context.Background(), "audit")
	require.NoError(t, err)
	defer p2.Close()
}

// TestAbandonedHandleDecays drops a handle without closing it and waits for
// the registry count to converge after collection.
func TestAbandonedHandleDecays(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub)

	p, err := c.CreateProducer(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, c.NumProducers())

	p = nil
	_ = p

	require.Eventually(t, func() bool {
		runtime.GC()
		return c.NumProducers() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

// TestAbandonedConsumerDecays drops a consumer handle without closing it
// and waits for the registry count to converge after collection.
func TestAbandonedConsumerDecays(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub)

	cons, err := c.Subscribe(context.Background(), "orders", "workers")
	require.NoError(t, err)
	assert.Equal(t, 1, c.NumConsumers())

	cons = nil
	_ = cons

	require.Eventually(t, func() bool {
		runtime.GC()
		return c.NumConsumers() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

// TestSendUnblockedByHandleClose completes an in-flight publish with
// AlreadyClosed when the handle closes while the broker sits on the SEND.
func TestSendUnblockedByHandleClose(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetSwallowSends(true)

	c := newTestClient(t, stub, WithOperationTimeout(10*time.Second))

	p, err := c.CreateProducer(context.Background(), "orders")
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := p.Send(context.Background(), message.New(message.Metadata{}, []byte("x")))
		errs <- err
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Equal(t, errors.ResultAlreadyClosed, errors.ResultOf(err))
	case <-time.After(3 * time.Second):
		t.Fatal("send did not observe the handle close")
	}
}

// TestSendOperationTimeout reports Timeout when the broker never
// acknowledges a publish, even with no deadline on the caller's context.
func TestSendOperationTimeout(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub, WithOperationTimeout(300*time.Millisecond))

	p, err := c.CreateProducer(context.Background(), "orders")
	require.NoError(t, err)
	defer p.Close()

	stub.SetSwallowSends(true)
	start := time.Now()
	_, err = p.Send(context.Background(), message.New(message.Metadata{}, []byte("x")))
	require.Error(t, err)
	assert.Equal(t, errors.ResultTimeout, errors.ResultOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

// TestAsyncCreates deliver handles through result channels
func TestAsyncCreates(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub)

	pres := <-c.CreateProducerAsync("orders")
	require.NoError(t, pres.Err)
	defer pres.Producer.Close()
	assert.Equal(t, "orders", pres.Producer.Topic())

	cres := <-c.SubscribeAsync("orders", "workers")
	require.NoError(t, cres.Err)
	defer cres.Consumer.Close()
	assert.Equal(t, "workers", cres.Consumer.Subscription())
}

// TestEmptyNames rejects blank topics and subscriptions without network IO
func TestEmptyNames(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	c := newTestClient(t, stub)
	ctx := context.Background()

	_, err = c.CreateProducer(ctx, " ")
	assert.Equal(t, errors.ResultInvalidTopicName, errors.ResultOf(err))

	_, err = c.Subscribe(ctx, "orders", "")
	assert.Equal(t, errors.ResultInvalidConfiguration, errors.ResultOf(err))

	_, err = c.CreateReader(ctx, "", message.EarliestMessageID())
	assert.Equal(t, errors.ResultInvalidTopicName, errors.ResultOf(err))
}

// TestReaderOnPartitionedTopic is rejected as invalid
func TestReaderOnPartitionedTopic(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetPartitions("orders", 2)

	c := newTestClient(t, stub)
	_, err = c.CreateReader(context.Background(), "orders", message.EarliestMessageID())
	require.Error(t, err)
	assert.Equal(t, errors.ResultInvalidTopicName, errors.ResultOf(err))
}
