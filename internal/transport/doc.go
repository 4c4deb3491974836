// Package transport abstracts the UDP socket(s) masterd listens on behind
// a small Poll/Send interface, so the engine's event loop and its tests do
// not depend on real sockets.
package transport
