package docker

import (
	"fmt"
	"net"
)

// Host port range scanned for a free Redis port.
const (
	startPort = 6379
	endPort   = 6478
)

// FindAvailablePort returns preferred if it can be bound on loopback, otherwise
// the first bindable port in the scan range not listed in used.
func FindAvailablePort(preferred int, used map[int]bool) (int, error) {
	if preferred > 0 && !used[preferred] && isPortBindable(preferred) {
		return preferred, nil
	}

	for port := startPort; port <= endPort; port++ {
		if used[port] {
			continue
		}
		if isPortBindable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available Redis ports (range %d-%d exhausted)", startPort, endPort)
}

// isPortBindable checks if a port can be bound on localhost.
func isPortBindable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
