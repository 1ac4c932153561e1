package broker

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/c360/pulsekit/errors"
)

// DefaultPort is assumed for service URL hosts that carry no port
const DefaultPort = 6650

// ServiceScheme is the accepted service URL scheme
const ServiceScheme = "pulse"

// ParseServiceURL splits a service URL of the form
// "pulse://host1:port1,host2:port2" into broker addresses. The scheme is
// optional and only the first element may carry it; hosts without a port
// get DefaultPort.
func ParseServiceURL(serviceURL string) ([]string, error) {
	raw := strings.TrimSpace(serviceURL)
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		if scheme != ServiceScheme {
			return nil, errors.Wrap(
				fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidServiceURL, scheme),
				"AddressSelector", "ParseServiceURL", "scheme validation")
		}
		raw = rest
	}

	var addrs []string
	for _, host := range strings.Split(raw, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = fmt.Sprintf("%s:%d", host, DefaultPort)
		}
		addrs = append(addrs, host)
	}
	if len(addrs) == 0 {
		return nil, errors.Wrap(errors.ErrNoAddresses, "AddressSelector", "ParseServiceURL", "address extraction")
	}
	return addrs, nil
}

// AddressSelector hands out broker addresses for connection attempts. It
// remembers the last address that worked and starts every sweep there,
// falling back through the rest of the configured list, so a previously
// failed address is retried once the cursor comes back around.
//
// The cursor is session-scoped state: independent clients do not share
// failover decisions.
type AddressSelector struct {
	addrs []string

	mu      sync.Mutex
	current int
}

// NewAddressSelector creates a selector over the given address list
func NewAddressSelector(addrs []string) *AddressSelector {
	return &AddressSelector{addrs: addrs}
}

// Len returns the number of configured addresses
func (s *AddressSelector) Len() int {
	return len(s.addrs)
}

// Candidates returns all addresses in attempt order for one sweep,
// starting from the last known-good address.
func (s *AddressSelector) Candidates() []string {
	s.mu.Lock()
	start := s.current
	s.mu.Unlock()

	out := make([]string, 0, len(s.addrs))
	for i := range s.addrs {
		out = append(out, s.addrs[(start+i)%len(s.addrs)])
	}
	return out
}

// MarkGood records addr as the last known-good address, making it the
// starting candidate of the next sweep. Unknown addresses are ignored.
func (s *AddressSelector) MarkGood(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.addrs {
		if a == addr {
			s.current = i
			return
		}
	}
}

// ForceIndex pins the sweep cursor. Test hook; the production path only
// moves the cursor through MarkGood.
func (s *AddressSelector) ForceIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.addrs) > 0 {
		s.current = ((i % len(s.addrs)) + len(s.addrs)) % len(s.addrs)
	}
}
