package client

import "fmt"

// Version is the library release version reported to brokers
const Version = "0.1.0"

// identityPrefix is the fixed product token of the client version string
const identityPrefix = "Pulsekit-Go"

// identity builds the client version string sent in the connection
// handshake: "Pulsekit-Go-vX.Y.Z", with "-description" appended when a
// description is configured. Brokers log this string per connection, so it
// is the operator's way to tell client deployments apart.
func identity(description string) string {
	s := fmt.Sprintf("%s-v%s", identityPrefix, Version)
	if description != "" {
		s += "-" + description
	}
	return s
}
