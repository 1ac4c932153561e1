package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c360/pulsekit/broker"
	"github.com/c360/pulsekit/errors"
	"github.com/c360/pulsekit/pkg/retry"
)

// Defaults applied by DefaultClientConfig and by Validate for zero fields.
const (
	DefaultConnectionTimeout = 10 * time.Second
	DefaultOperationTimeout  = 30 * time.Second
	DefaultSweepInterval     = 30 * time.Second
)

// ClientConfig holds the settings of one client session. The zero value is
// not usable directly; start from DefaultClientConfig or LoadFile and
// adjust.
type ClientConfig struct {
	// ServiceURL locates the broker cluster, e.g.
	// "pulse://host1:6650,host2:6650". Hosts without a port get the
	// default broker port.
	ServiceURL string `json:"service_url"`

	// ConnectionTimeout bounds a single dial-plus-handshake attempt
	// against one broker address.
	ConnectionTimeout time.Duration `json:"connection_timeout"`

	// OperationTimeout bounds a whole client operation such as creating a
	// producer, including any address failover it performs.
	OperationTimeout time.Duration `json:"operation_timeout"`

	// ListenerName is advertised during the connection handshake so the
	// broker can select the matching advertised listener. Empty means the
	// broker default.
	ListenerName string `json:"listener_name"`

	// Description is appended to the client version string reported to
	// brokers.
	Description string `json:"description"`

	// SweepInterval is how often the resource registry drops entries
	// whose handles were closed or garbage collected.
	SweepInterval time.Duration `json:"sweep_interval"`

	// ConnectRetry governs repeated sweeps over the address list during
	// one acquisition. The zero value means a single sweep.
	ConnectRetry retry.Config `json:"connect_retry"`
}

// DefaultClientConfig returns a config with defaults for everything except
// the service URL, which has no sensible default.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectionTimeout: DefaultConnectionTimeout,
		OperationTimeout:  DefaultOperationTimeout,
		SweepInterval:     DefaultSweepInterval,
	}
}

// Validate checks the config and fills defaulted fields in place
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.ServiceURL) == "" {
		return errors.WrapInvalid(errors.ErrInvalidServiceURL,
			"ClientConfig", "Validate", "service URL is required")
	}
	if _, err := broker.ParseServiceURL(c.ServiceURL); err != nil {
		return errors.WrapInvalid(err, "ClientConfig", "Validate", "parse service URL")
	}
	if c.ConnectionTimeout < 0 || c.OperationTimeout < 0 || c.SweepInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"ClientConfig", "Validate", "timeouts cannot be negative")
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return nil
}

// ApplyEnv overrides config fields from PULSEKIT_* environment variables.
// Unset variables leave the field untouched; malformed values are an error
// rather than a silent fallback.
func (c *ClientConfig) ApplyEnv() error {
	if v, err := envString("PULSEKIT_SERVICE_URL"); err != nil {
		return err
	} else if v != "" {
		c.ServiceURL = v
	}
	if v, err := envString("PULSEKIT_LISTENER_NAME"); err != nil {
		return err
	} else if v != "" {
		c.ListenerName = v
	}
	if d, ok, err := envDuration("PULSEKIT_CONNECTION_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.ConnectionTimeout = d
	}
	if d, ok, err := envDuration("PULSEKIT_OPERATION_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.OperationTimeout = d
	}
	return nil
}

func envString(key string) (string, error) {
	v := os.Getenv(key)
	if err := validateEnvVar(key, v); err != nil {
		return "", errors.WrapInvalid(err, "ClientConfig", "ApplyEnv", "validate environment")
	}
	return v, nil
}

func envDuration(key string) (time.Duration, bool, error) {
	v, err := envString(key)
	if err != nil || v == "" {
		return 0, false, err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, errors.WrapInvalid(
			fmt.Errorf("parse %s: %w", key, err),
			"ClientConfig", "ApplyEnv", "parse duration")
	}
	return d, true, nil
}
