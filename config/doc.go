// Package config defines the client session configuration.
//
// ClientConfig carries the settings a session needs: the broker service
// URL, the two operation timers (connection timeout per dial attempt,
// operation timeout per client call), the advertised listener name, and
// registry housekeeping intervals. Construct it from DefaultClientConfig
// and adjust, or load a JSON file with LoadFile.
//
// # Layering
//
// LoadFile applies three layers with last-wins semantics: built-in
// defaults, the JSON file, then PULSEKIT_* environment variables:
//
//	export PULSEKIT_SERVICE_URL="pulse://broker1:6650,broker2:6650"
//	export PULSEKIT_OPERATION_TIMEOUT="45s"
//
// Durations in the file are Go duration strings:
//
//	{
//	  "service_url": "pulse://localhost:6650",
//	  "connection_timeout": "10s",
//	  "operation_timeout": "30s"
//	}
//
// Validate fills zero fields with defaults and rejects negative timers and
// unparseable service URLs, so a config that passes validation is usable
// as-is.
package config
