// Package proto implements the legacy master-server wire protocol.
//
// It owns the Address value type, the little-endian packet codec (header,
// primitives, length-prefixed strings), and the packet type/flag constants.
// It has no knowledge of registries, peers or sessions; the protocol
// dispatcher that acts on decoded packets lives in internal/engine.
package proto
