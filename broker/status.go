package broker

// ConnectionStatus represents the lifecycle state of a broker connection
type ConnectionStatus int

// Possible connection statuses. A connection moves Pending -> Connecting ->
// Ready on success, or to Failed on a connect/handshake error. Closed is
// terminal and entered from any state.
const (
	StatusPending ConnectionStatus = iota
	StatusConnecting
	StatusReady
	StatusFailed
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
