package state

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"net"
	"sync"
	"time"

	"masterd/internal/proto"
)

// Region family bits, maintained by the registry rather than the sender
// (spec §3: "top two bits are reserved to encode address family").
const (
	RegionBitIPv4 uint32 = 1 << 30
	RegionBitIPv6 uint32 = 1 << 31
	regionFamilyMask = RegionBitIPv4 | RegionBitIPv6
)

// ServerInfo is the live record for one remote game server.
//
// Grounded on original_source/include/ServerStore.h's tServerInfo and
// spec §3; gameType/missionType are carried as pool handles rather than
// strings since Go's GC makes refcount bookkeeping unnecessary for reads.
type ServerInfo struct {
	Address proto.Address

	GameType    Handle
	MissionType Handle

	Regions     uint32
	Version     uint32
	CPUSpeedMHz uint32
	PlayerCount uint8
	MaxPlayers  uint8
	BotCount    uint8
	InfoFlags   uint8

	PlayerGUIDs []uint32

	LastInfoAt time.Time
	TestServer bool
}

// ServerUpdate is the caller-supplied payload for Registry.Update; string
// fields are plain text and are interned by the registry itself so callers
// never juggle pool handles directly.
type ServerUpdate struct {
	GameType    string
	MissionType string

	// Regions carries the sender-supplied geographic region bits (spec §3);
	// any address-family bits (30/31) it sets are ignored, since Update
	// recomputes those from addr itself.
	Regions uint32

	Version     uint32
	CPUSpeedMHz uint32
	PlayerCount uint8
	MaxPlayers  uint8
	BotCount    uint8
	InfoFlags   uint8
	PlayerGUIDs []uint32

	TestServer bool
}

// Registry is the address-keyed table of live game servers. Grounded on
// original_source/masterd/ServerStoreRAM.cc: a map plus a persistent
// round-robin iterator for Sweep, and a string pool shared by every record.
type Registry struct {
	mu     sync.Mutex
	pool   *StringPool
	byAddr map[proto.Address]*ServerInfo

	sweepOrder  []proto.Address
	sweepCursor int

	heartbeatTimeout time.Duration
	testingMode      bool
	log              *slog.Logger
}

func NewRegistry(heartbeatTimeout time.Duration, testingMode bool, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		pool:             NewStringPool(),
		byAddr:           make(map[proto.Address]*ServerInfo),
		heartbeatTimeout: heartbeatTimeout,
		testingMode:      testingMode,
		log:              log,
	}
}

// Heartbeat produces a fresh (session, key) pair used to correlate the
// subsequent InfoRequest/InfoResponse exchange. The registry stores nothing
// here; identity is by address (spec §4.3).
func (r *Registry) Heartbeat() (session uint16, key uint16) {
	return randU16(), randU16()
}

func randU16() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint16(b[:])
}

func regionFamilyBit(addr proto.Address) uint32 {
	if addr.IsV6() {
		return RegionBitIPv6
	}
	return RegionBitIPv4
}

// Update inserts or refreshes the record at addr, per spec §4.3: interning
// gameType/missionType (releasing any previous handles on refresh), storing
// the sender-supplied region bits with only the address-family bits (30/31)
// recomputed from addr (original_source/masterd/TorqueIO.cc:335 masks the
// same two bits out of the wire value before storing it), and stamping
// lastInfoAt.
func (r *Registry) Update(addr proto.Address, upd ServerUpdate, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gt := r.pool.Intern(upd.GameType)
	mt := r.pool.Intern(upd.MissionType)

	info, exists := r.byAddr[addr]
	if !exists {
		info = &ServerInfo{Address: addr}
		r.byAddr[addr] = info
		r.sweepOrder = append(r.sweepOrder, addr)
	} else {
		r.pool.Release(info.GameType)
		r.pool.Release(info.MissionType)
	}

	info.GameType = gt
	info.MissionType = mt
	info.Version = upd.Version
	info.CPUSpeedMHz = upd.CPUSpeedMHz
	info.PlayerCount = upd.PlayerCount
	info.MaxPlayers = upd.MaxPlayers
	info.BotCount = upd.BotCount
	info.InfoFlags = upd.InfoFlags
	info.PlayerGUIDs = upd.PlayerGUIDs
	info.TestServer = upd.TestServer

	info.Regions = (upd.Regions &^ regionFamilyMask) | regionFamilyBit(addr)
	info.LastInfoAt = now

	if !exists {
		r.log.Debug("registry: server added", "addr", addr.String(), "gameType", upd.GameType)
	}
}

// syntheticServers seeds a small, fixed set of fake game servers under
// testingMode (spec §6.4: "testingMode (0/1) | populate synthetic
// servers"), so a client or operator can exercise list/info queries
// against a freshly-started daemon with no real servers heartbeating yet.
var syntheticServers = []ServerUpdate{
	{GameType: "CTF", MissionType: "Ambush", PlayerCount: 3, MaxPlayers: 16, Version: 1000, CPUSpeedMHz: 1800, TestServer: true},
	{GameType: "DM", MissionType: "Desolation", PlayerCount: 6, MaxPlayers: 12, Version: 1000, CPUSpeedMHz: 2000, TestServer: true},
	{GameType: "CTF", MissionType: "Katabatic", PlayerCount: 0, MaxPlayers: 16, Version: 1000, CPUSpeedMHz: 1600, TestServer: true},
}

// SeedSynthetic populates the registry with syntheticServers under fixed
// loopback addresses, each marked TestServer so Sweep's testingMode
// exemption (below) keeps them alive indefinitely without real heartbeats.
// It is a no-op unless the registry was constructed with testingMode.
func (r *Registry) SeedSynthetic(now time.Time) {
	if !r.testingMode {
		return
	}
	for i, upd := range syntheticServers {
		a := proto.AddressFromUDP(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 29000 + i})
		r.Update(a, upd, now)
	}
}

// Count returns the number of live server records.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAddr)
}

// Sweep visits up to budget records in round-robin order that persists
// across calls, dropping any record past heartbeatTimeout unless it is a
// TestServer under testing mode. Grounded on original_source/masterd/
// ServerStoreRAM.cc's m_ProcIT cursor, which walks the map a fixed number
// of entries per housekeeping tick instead of scanning it whole.
func (r *Registry) Sweep(budget int, now time.Time) (dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sweepOrder) == 0 {
		return 0
	}
	if r.sweepCursor >= len(r.sweepOrder) {
		r.sweepCursor = 0
	}

	visited := 0
	start := r.sweepCursor
	for visited < budget && visited < len(r.sweepOrder) {
		idx := (start + visited) % len(r.sweepOrder)
		addr := r.sweepOrder[idx]
		visited++

		info, ok := r.byAddr[addr]
		if !ok {
			continue
		}
		expired := now.Sub(info.LastInfoAt) > r.heartbeatTimeout
		if expired && !(info.TestServer && r.testingMode) {
			r.pool.Release(info.GameType)
			r.pool.Release(info.MissionType)
			delete(r.byAddr, addr)
			dropped++
		}
	}

	// Rebuild sweepOrder from whatever remains in byAddr, preserving the
	// original relative ordering so the cursor stays meaningful.
	survivors := make([]proto.Address, 0, len(r.sweepOrder))
	for _, addr := range r.sweepOrder {
		if _, ok := r.byAddr[addr]; ok {
			survivors = append(survivors, addr)
		}
	}
	r.sweepOrder = survivors
	if len(r.sweepOrder) == 0 {
		r.sweepCursor = 0
	} else {
		r.sweepCursor = (start + visited) % len(r.sweepOrder)
	}
	return dropped
}

// snapshot returns every live record's info under the registry lock, for
// Query to filter without holding the lock across handler callbacks.
func (r *Registry) snapshot() []ServerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServerInfo, 0, len(r.byAddr))
	for _, addr := range r.sweepOrder {
		if info, ok := r.byAddr[addr]; ok {
			out = append(out, *info)
		}
	}
	return out
}

// LookupGameTypeHandle exposes the pool lookup for filter evaluation, so the
// query path can short-circuit to zero results when a requested tag was
// never interned (spec §4.3).
func (r *Registry) LookupGameTypeHandle(s string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Lookup(s)
}

// GameTypes returns every distinct gameType currently held by a live record,
// for the MasterServerGameTypesResponse handler. The pool does not
// distinguish which field a string was interned for, so the set is built
// from the records' GameType handles; MissionTypes does the same for
// missionType.
func (r *Registry) GameTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[Handle]bool)
	out := make([]string, 0, len(r.byAddr))
	for _, info := range r.byAddr {
		if info.GameType != 0 && !seen[info.GameType] {
			seen[info.GameType] = true
			out = append(out, r.pool.Text(info.GameType))
		}
	}
	return out
}

// MissionTypes mirrors GameTypes for the missionType field.
func (r *Registry) MissionTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[Handle]bool)
	out := make([]string, 0, len(r.byAddr))
	for _, info := range r.byAddr {
		if info.MissionType != 0 && !seen[info.MissionType] {
			seen[info.MissionType] = true
			out = append(out, r.pool.Text(info.MissionType))
		}
	}
	return out
}
