package client

import (
	"log/slog"
	"time"

	"github.com/c360/pulsekit/broker"
	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/metric"
	"github.com/c360/pulsekit/pkg/retry"
)

// Option is a functional option for configuring the Client
type Option func(*Client) error

// WithConnectionTimeout bounds a single dial-plus-handshake attempt against
// one broker address.
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.cfg.ConnectionTimeout = d
		return nil
	}
}

// WithOperationTimeout bounds whole client operations such as creating a
// producer, including address failover.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.cfg.OperationTimeout = d
		return nil
	}
}

// WithListenerName selects the broker's advertised listener to connect
// through. Brokers reject clients naming an unprovisioned listener with
// ServiceUnitNotReady.
func WithListenerName(name string) Option {
	return func(c *Client) error {
		c.cfg.ListenerName = name
		return nil
	}
}

// WithDescription appends a deployment-specific suffix to the client
// version string reported to brokers.
func WithDescription(description string) Option {
	return func(c *Client) error {
		c.cfg.Description = description
		return nil
	}
}

// WithSweepInterval sets how often the resource registry drops dead entries
func WithSweepInterval(d time.Duration) Option {
	return func(c *Client) error {
		c.cfg.SweepInterval = d
		return nil
	}
}

// WithConnectRetry enables repeated sweeps over the address list during one
// connection acquisition. The default is a single sweep.
func WithConnectRetry(cfg retry.Config) Option {
	return func(c *Client) error {
		c.cfg.ConnectRetry = cfg
		return nil
	}
}

// WithLogger sets a custom logger for the client. The default discards
// everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"Client", "WithLogger", "logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithMetricsRegistry shares a metrics registry between clients or exposes
// it on an application's own scrape endpoint.
func WithMetricsRegistry(reg *metric.MetricsRegistry) Option {
	return func(c *Client) error {
		if reg == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"Client", "WithMetricsRegistry", "registry cannot be nil")
		}
		c.metricsRegistry = reg
		return nil
	}
}

// WithCodec installs a custom frame codec for deployments with their own
// wire protocol. The default is the length-prefixed JSON codec.
func WithCodec(codec broker.Codec) Option {
	return func(c *Client) error {
		if codec == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"Client", "WithCodec", "codec cannot be nil")
		}
		c.codec = codec
		return nil
	}
}
