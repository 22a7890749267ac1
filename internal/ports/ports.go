package ports

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoAvailablePort indicates the entire probe range was exhausted.
var ErrNoAvailablePort = errors.New("ports: no available port")

// Allocate returns the first port in [start, start+attempts) that could be
// bound for listening at the moment of the probe. The listener is closed
// immediately, so the result is advisory: the proxy performs the real bind
// when its configuration is loaded, and a lost race surfaces there as a
// reload failure.
func Allocate(start, attempts int) (int, error) {
	if start <= 0 || attempts <= 0 {
		return 0, fmt.Errorf("ports: invalid probe range start=%d attempts=%d", start, attempts)
	}
	for port := start; port < start+attempts; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("%w in range %d-%d", ErrNoAvailablePort, start, start+attempts-1)
}
