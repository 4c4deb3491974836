package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"masterd/internal/proto"
)

// maxListenSockets matches spec §5's "up to two listen sockets (one per
// address family)".
const maxListenSockets = 2

// UDPTransport owns one or two *net.UDPConn listen sockets and is the sole
// owner of the daemon's sockets, per spec §5.
type UDPTransport struct {
	conns []*net.UDPConn
}

// Listen opens one UDP socket per address in addrs (at most
// maxListenSockets), binding each to the given port when the address
// string did not already embed one.
func Listen(addrs []string, defaultPort int) (*UDPTransport, error) {
	if len(addrs) == 0 {
		return nil, errors.New("transport: at least one bind address is required")
	}
	if len(addrs) > maxListenSockets {
		return nil, fmt.Errorf("transport: at most %d listen sockets supported, got %d", maxListenSockets, len(addrs))
	}

	t := &UDPTransport{}
	for _, a := range addrs {
		udpAddr, err := resolveBindAddr(a, defaultPort)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("transport: resolve %q: %w", a, err)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("transport: listen on %s: %w", udpAddr, err)
		}
		t.conns = append(t.conns, conn)
	}
	return t, nil
}

func resolveBindAddr(addr string, defaultPort int) (*net.UDPAddr, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// No port embedded; use the configured default.
		return &net.UDPAddr{IP: net.ParseIP(addr), Port: defaultPort}, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	return udpAddr, nil
}

// Poll round-robins a read across every listen socket with a short
// per-socket deadline, returning the first datagram received. ok=false with
// a nil error means nothing arrived within timeout.
func (t *UDPTransport) Poll(timeout time.Duration) (Datagram, bool, error) {
	if len(t.conns) == 0 {
		return Datagram{}, false, errors.New("transport: no listen sockets")
	}
	perSocket := timeout
	if n := len(t.conns); n > 1 {
		perSocket = timeout / time.Duration(n)
		if perSocket <= 0 {
			perSocket = time.Millisecond
		}
	}

	buf := make([]byte, proto.MaxMTU)
	for idx, conn := range t.conns {
		if err := conn.SetReadDeadline(time.Now().Add(perSocket)); err != nil {
			return Datagram{}, false, fmt.Errorf("transport: set deadline: %w", err)
		}
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return Datagram{}, false, fmt.Errorf("transport: read: %w", err)
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		return Datagram{
			Payload: payload,
			Source:  proto.AddressFromUDP(raddr),
			Socket:  idx,
		}, true, nil
	}
	return Datagram{}, false, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Send writes out.Payload to out.Dest via the listen socket out.Socket
// identified, matching the socket the originating request arrived on.
func (t *UDPTransport) Send(out Outbound) error {
	if out.Socket < 0 || out.Socket >= len(t.conns) {
		return fmt.Errorf("transport: invalid socket index %d", out.Socket)
	}
	_, err := t.conns[out.Socket].WriteToUDP(out.Payload, out.Dest.UDPAddr())
	return err
}

// Close releases every listen socket. Errors from individual sockets are
// joined rather than aborting early, so Close always attempts to release
// everything it opened.
func (t *UDPTransport) Close() error {
	var errs []error
	for _, conn := range t.conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
