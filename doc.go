// Package pulsekit is the client session layer for a partitioned pub/sub
// broker cluster: connections, producers, consumers and readers with a
// closed, predictable outcome vocabulary.
//
// # Architecture
//
// The module is layered from the wire up:
//
//	┌─────────────────────────────────────┐
//	│            client                   │  Client sessions, handles,
//	│ (producers, consumers, readers,     │  partition coordinators,
//	│  resource registry)                 │  weak resource tracking
//	└─────────────────────────────────────┘
//	           ↓ acquires through
//	┌─────────────────────────────────────┐
//	│            broker                   │  Address failover, pooled
//	│ (selector, connection, pool, codec) │  connections, dual timers,
//	│                                     │  request multiplexing
//	└─────────────────────────────────────┘
//	           ↓ exchanges
//	┌─────────────────────────────────────┐
//	│            message                  │  Ids, metadata, batch entry
//	│ (ids, metadata, batch decoding)     │  reconstruction
//	└─────────────────────────────────────┘
//
// # Outcomes
//
// Every broker-facing operation completes with exactly one value of the
// closed errors.Result enumeration: Ok, Timeout, ConnectError,
// Disconnected, ServiceUnitNotReady and so on. Transport errors never leak
// raw; errors.ResultOf categorizes any returned error back into the
// enumeration, so callers can branch on outcomes without string matching.
//
// # Timers
//
// Two timers race over every operation. The connection timeout bounds each
// dial-plus-handshake attempt against one broker address and reports
// ConnectError. The operation timeout bounds the whole client call,
// including failover across addresses, and reports Timeout. Closing the
// client aborts everything in flight with Disconnected.
//
// # Packages
//
// Core:
//   - client: sessions, producers, consumers, readers
//   - broker: address selection, connections, pooling, frame codec
//   - message: message ids, metadata, batch entry decoding
//
// Infrastructure:
//   - config: client configuration, file loading, env overrides
//   - errors: outcome enumeration and error classification
//   - metric: Prometheus metrics per client session
//   - pkg/retry: exponential backoff for connection sweeps
//   - testutil: in-process stub broker for tests
//
// # Usage
//
//	c, err := client.NewClient("pulse://broker1:6650,broker2:6650")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	producer, err := c.CreateProducer(ctx, "orders")
//	defer producer.Close()
//	if err != nil {
//		return err
//	}
//
//	id, err := producer.Send(ctx, message.New(message.Metadata{}, payload))
//
// Consuming mirrors producing:
//
//	consumer, err := c.Subscribe(ctx, "orders", "workers")
//	defer consumer.Close()
//	msg, err := consumer.Receive(ctx)
//
// Partitioned topics are transparent: the same calls fan out over every
// partition and the handles coordinate their per-partition resources.
package pulsekit
