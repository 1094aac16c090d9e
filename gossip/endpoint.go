package gossip

import (
	"fmt"
	"net"
	"strconv"
)

// EndPoint is the (host, port) identity of a process. It is comparable and is
// the key of the membership list.
type EndPoint struct {
	Host string
	Port int
}

// NewEndPoint builds an EndPoint from its parts
func NewEndPoint(host string, port int) EndPoint {
	return EndPoint{Host: host, Port: port}
}

// ParseEndPoint parses "host:port"
func ParseEndPoint(s string) (EndPoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return EndPoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndPoint, s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return EndPoint{}, fmt.Errorf("%w: %q: bad port", ErrInvalidEndPoint, s)
	}
	ep := EndPoint{Host: host, Port: port}
	if err := ep.Validate(); err != nil {
		return EndPoint{}, err
	}
	return ep, nil
}

// Validate checks that the host is set and the port is usable
func (e EndPoint) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidEndPoint)
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndPoint, e.Port)
	}
	return nil
}

// IsZero reports whether e is the zero value
func (e EndPoint) IsZero() bool {
	return e == EndPoint{}
}

func (e EndPoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// UDPAddr resolves the endpoint for the datagram transport
func (e EndPoint) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", e.String())
}
