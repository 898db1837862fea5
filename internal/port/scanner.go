package port

import (
	"fmt"
	"net"
	"strconv"
)

// Scanner checks whether TCP ports are free on a given bind address.
//
// It asks the operating system directly by binding a listener, which is
// more reliable than parsing /proc/net/* or shelling out to lsof or ss.
type Scanner struct {
	// host is the bind address probed, e.g. "0.0.0.0" or "127.0.0.1".
	// Empty means all interfaces.
	host string
}

// NewScanner creates a Scanner that probes ports on host.
func NewScanner(host string) *Scanner {
	return &Scanner{host: host}
}

// IsPortAvailable reports whether a listener could bind port right now.
// The probe listener is closed immediately. Out-of-range ports are
// reported as unavailable.
func (s *Scanner) IsPortAvailable(port int) bool {
	if port < 1 || port > maxPort {
		return false
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	defer func() { _ = listener.Close() }()
	return true
}

// FindAvailablePort scans [startPort, endPort] (inclusive) upward and
// returns the first free port.
//
// The search order is deterministic so the same free port is picked
// consistently, which helps when reading logs.
func (s *Scanner) FindAvailablePort(startPort, endPort int) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available tcp port found in range %d-%d", startPort, endPort)
}
