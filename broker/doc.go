// Package broker manages transport sessions to pub/sub broker nodes:
// address selection with failover, connection establishment with handshake,
// async request/response multiplexing, and connection pooling.
//
// # Address Failover
//
// A service URL may name several broker addresses. AddressSelector keeps a
// session-scoped cursor at the last address that worked; every acquisition
// sweeps the list starting there, so one unreachable address does not stop
// a client while a later candidate is healthy, and a previously failed
// address gets retried when the cursor returns to it.
//
// # Timers
//
// Two independent timers race over every acquisition. The connect timeout
// bounds one dial-plus-handshake attempt and reports ConnectError when it
// fires. The caller's context carries the operation timer (and the client's
// lifetime): its deadline reports Timeout, its cancellation Disconnected,
// even when the transport itself never errored. A broker that accepts the
// socket and then goes silent cannot hang a request.
//
// # Sharing
//
// Pool keys connections by address; resources targeting the same broker
// share one Connection, reference-counted by usage. Requests from any
// number of goroutines are multiplexed over the single socket via a pending
// request table; broker-initiated MESSAGE frames are routed to registered
// consumer channels. Closing a shared connection completes every in-flight
// request on it with Disconnected.
package broker
