// Package state holds the master server's live, in-memory registry of game
// servers and the per-peer flood-control/session table that protects it.
//
// Both tables key on proto.Address but are otherwise independent (spec §9,
// "per-peer record and per-address record are different"): the registry
// tracks remote game servers, the peer table tracks any remote source
// address that has sent the daemon a packet. Neither survives a restart.
package state
