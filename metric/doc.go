// Package metric provides Prometheus observability for pulsekit clients.
//
// Each client owns a MetricsRegistry wrapping a private
// prometheus.Registry, so multiple clients in one process never collide on
// collector registration. The core Metrics cover resource lifecycles
// (active producers/consumers, creation outcomes and latency), broker
// connections (pool size, connect attempts by outcome, partition lookups)
// and delivery (decoded batch entries, send receipts and failures).
//
// Applications can expose the registry over HTTP with Handler, and attach
// their own collectors with RegisterCollector.
package metric
