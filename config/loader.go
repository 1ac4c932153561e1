package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360/pulsekit/errors"
)

const (
	maxConfigSize = 1 << 20 // 1MB is generous for a client config file
	maxJSONDepth  = 32
	maxEnvVarLen  = 10000
)

// fileConfig is the on-disk shape of ClientConfig. Durations are written as
// Go duration strings ("10s", "500ms") instead of raw nanosecond counts.
type fileConfig struct {
	ServiceURL        string `json:"service_url"`
	ConnectionTimeout string `json:"connection_timeout"`
	OperationTimeout  string `json:"operation_timeout"`
	ListenerName      string `json:"listener_name"`
	Description       string `json:"description"`
	SweepInterval     string `json:"sweep_interval"`
}

// LoadFile reads a JSON client config from path, applies PULSEKIT_*
// environment overrides on top, and validates the result.
func LoadFile(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	data, err := safeReadFile(path)
	if err != nil {
		return cfg, errors.WrapInvalid(err, "ClientConfig", "LoadFile", "read config file")
	}
	if err := validateJSONDepth(data); err != nil {
		return cfg, errors.WrapInvalid(err, "ClientConfig", "LoadFile", "inspect JSON structure")
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg, errors.WrapInvalid(err, "ClientConfig", "LoadFile", "parse config JSON")
	}
	if err := fc.apply(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *ClientConfig) error {
	if fc.ServiceURL != "" {
		cfg.ServiceURL = fc.ServiceURL
	}
	if fc.ListenerName != "" {
		cfg.ListenerName = fc.ListenerName
	}
	if fc.Description != "" {
		cfg.Description = fc.Description
	}
	for _, f := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"connection_timeout", fc.ConnectionTimeout, &cfg.ConnectionTimeout},
		{"operation_timeout", fc.OperationTimeout, &cfg.OperationTimeout},
		{"sweep_interval", fc.SweepInterval, &cfg.SweepInterval},
	} {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("parse %s: %w", f.name, err),
				"ClientConfig", "LoadFile", "parse duration field")
		}
		*f.dst = d
	}
	return nil
}

// safeReadFile reads a config file after sanity-checking the path, size
// and file type.
func safeReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, stderrors.New("empty config path")
	}
	if !strings.HasSuffix(path, ".json") {
		return nil, fmt.Errorf("only JSON config files allowed: %s", path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", clean)
	}
	return os.ReadFile(clean)
}

// validateEnvVar rejects oversized or binary-polluted environment values
func validateEnvVar(key, value string) error {
	if value == "" {
		return nil
	}
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// validateJSONDepth bounds nesting before unmarshaling untrusted files
func validateJSONDepth(data []byte) error {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
		b := data[i]
		if escaped {
			escaped = false
			continue
		}
		if b == '\\' && inString {
			escaped = true
			continue
		}
		if b == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch b {
		case '{', '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", depth, maxJSONDepth)
			}
		case '}', ']':
			depth--
			if depth < 0 {
				return stderrors.New("malformed JSON: unbalanced brackets")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("malformed JSON: unclosed brackets (depth=%d)", depth)
	}
	return nil
}
