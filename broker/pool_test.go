package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/pulsekit/broker"
	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/testutil"
)

// TestPoolFailover acquires through a dead first address to a live second one
func TestPoolFailover(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	selector := broker.NewAddressSelector([]string{deadAddr(t), stub.Addr()})
	pool := broker.NewPool(selector, broker.PoolConfig{
		ConnectTimeout: 2 * time.Second,
	})
	defer pool.Close()

	conn, err := pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stub.Addr(), conn.Addr())

	// The working address became the sweep cursor
	assert.Equal(t, stub.Addr(), selector.Candidates()[0])

	// A second acquisition reuses the pooled connection
	again, err := pool.GetConnection(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, again)
}

// TestPoolAllAddressesDead reports ConnectError after the full sweep
func TestPoolAllAddressesDead(t *testing.T) {
	selector := broker.NewAddressSelector([]string{deadAddr(t), deadAddr(t)})
	pool := broker.NewPool(selector, broker.PoolConfig{
		ConnectTimeout: time.Second,
	})
	defer pool.Close()

	_, err := pool.GetConnection(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ResultConnectError, errors.ResultOf(err))
}

// TestPoolKeepsHandshakeOutcome surfaces a broker's categorized rejection
// instead of folding it into ConnectError at the end of the sweep.
func TestPoolKeepsHandshakeOutcome(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetConnectReject("ServiceUnitNotReady", "unit not assigned")

	pool := broker.NewPool(broker.NewAddressSelector([]string{stub.Addr()}), broker.PoolConfig{
		ConnectTimeout: 2 * time.Second,
	})
	defer pool.Close()

	_, err = pool.GetConnection(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ResultServiceUnitNotReady, errors.ResultOf(err))
}

// TestPoolClosed fails acquisitions with Disconnected after Close
func TestPoolClosed(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()

	pool := broker.NewPool(broker.NewAddressSelector([]string{stub.Addr()}), broker.PoolConfig{})
	pool.Close()

	_, err = pool.GetConnection(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ResultDisconnected, errors.ResultOf(err))
	assert.True(t, pool.Closed())
}

// TestPoolOperationDeadline stops sweeping once the operation timer fires
func TestPoolOperationDeadline(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetBlackHole(true)

	pool := broker.NewPool(broker.NewAddressSelector([]string{stub.Addr()}), broker.PoolConfig{
		ConnectTimeout: 10 * time.Second,
	})
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = pool.GetConnection(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ResultTimeout, errors.ResultOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

// TestPoolLookupPartitions round-trips topic metadata through the pool
func TestPoolLookupPartitions(t *testing.T) {
	stub, err := testutil.NewStubBroker()
	require.NoError(t, err)
	defer stub.Close()
	stub.SetPartitions("events", 8)

	pool := broker.NewPool(broker.NewAddressSelector([]string{stub.Addr()}), broker.PoolConfig{})
	defer pool.Close()

	n, err := pool.LookupPartitions(context.Background(), "events")
	require.NoError(t, err)
	assert.Equal(t, uint32(8), n)

	n, err = pool.LookupPartitions(context.Background(), "unscripted")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)
}
