package transport

import (
	"time"

	"masterd/internal/proto"
)

// Datagram is one inbound UDP payload, its source address, and the index
// of the listen socket it arrived on (spec §5: "replies go out via the
// same socket that received the request").
type Datagram struct {
	Payload []byte
	Source  proto.Address
	Socket  int
}

// Outbound is one payload queued for delivery to a destination address via
// a specific listen socket.
type Outbound struct {
	Payload []byte
	Dest    proto.Address
	Socket  int
}

// Transport is the engine's view of the network: receive and send UDP
// datagrams without naming *net.UDPConn directly, so tests can substitute
// an in-memory fake. Grounded on the teacher's internal/dp8shim.Shim,
// which plays the same role (PopEvent/SendTo) for the DirectPlay8 session;
// this package keeps that shape but speaks plain UDP.
type Transport interface {
	// Poll blocks up to timeout for the next inbound datagram. It returns
	// ok=false (no error) on a timeout, so the caller's event loop can
	// check ctx.Done() between polls without busy-spinning.
	Poll(timeout time.Duration) (dg Datagram, ok bool, err error)

	// Send transmits out.Payload to out.Dest on the listen socket whose
	// index is out.Socket (the socket the originating request arrived on).
	Send(out Outbound) error

	// Close releases the underlying sockets.
	Close() error
}
