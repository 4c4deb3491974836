// Package engine runs the master server's single-threaded, cooperative
// event loop: poll the transport for datagrams, dispatch each through the
// protocol handlers, and run bounded housekeeping sweeps over the registry
// and peer table between polls.
package engine
