// Package client implements the session layer of a pulsekit deployment:
// one Client per broker cluster, producing, subscribing and reading
// through shared pooled connections.
//
// # Sessions
//
// A Client owns everything it creates. Producers, consumers and readers
// share broker connections keyed by address, fail over between the
// addresses of the service URL, and are tracked in a session registry so
// Close can tear all of them down. Close is terminal: later creates fail
// with AlreadyClosed without any network activity, and creates that were
// in flight complete with Disconnected.
//
// # Handles
//
// Create operations return a non-nil handle even on failure. An
// uninitialized handle is inert; its operations report
// ProducerNotInitialized or ConsumerNotInitialized instead of panicking,
// so call sites can defer the Close unconditionally:
//
//	producer, err := c.CreateProducer(ctx, "events")
//	defer producer.Close()
//	if err != nil {
//		return err
//	}
//
// # Partitioned topics
//
// When the broker reports a topic as partitioned, creates fan out over
// every partition in parallel and succeed all-or-nothing. The handle
// coordinates its per-partition resources transparently; each partition
// counts once in NumProducers and NumConsumers.
//
// # Resource tracking
//
// The registry holds resources weakly. Counts drop immediately on Close
// through a shared closed flag, and handles the application merely dropped
// decay once the garbage collector reclaims them, so the registry never
// keeps an abandoned resource alive and never reports one as usable.
package client
