package state

import (
	"sync"
	"time"

	"masterd/internal/proto"
)

// PeerRecord tracks flood-control reputation and live sessions for any
// remote address that has sent the daemon a packet. Grounded on
// original_source/include/SessionHandler.h's tPeerRecord.
type PeerRecord struct {
	Address proto.Address

	TsCreated         time.Time
	TsLastSeen        time.Time
	TsLastTicketReset time.Time
	TsBannedUntil     time.Time

	Tickets   int
	TotalBans int
	Sessions  []*Session
}

// FloodConfig holds the tunables from spec §6.4's flood:: config group.
type FloodConfig struct {
	MaxTickets         int
	TicketResetPeriod  time.Duration
	BanDuration        time.Duration
	ForgetTime         time.Duration
	TicksOnBadMessage  int
	MaxSessionsPerPeer int
	SessionTimeout     time.Duration
}

// PeerTable is the address-keyed flood-control and session store, kept
// independent from Registry per spec §9.
type PeerTable struct {
	mu     sync.Mutex
	byAddr map[proto.Address]*PeerRecord

	sweepOrder  []proto.Address
	sweepCursor int

	cfg FloodConfig
}

func NewPeerTable(cfg FloodConfig) *PeerTable {
	if cfg.MaxSessionsPerPeer <= 0 {
		cfg.MaxSessionsPerPeer = 10
	}
	return &PeerTable{
		byAddr: make(map[proto.Address]*PeerRecord),
		cfg:    cfg,
	}
}

// CheckPeer implements spec §4.4: create-if-absent, optional ticket charge,
// ticket-window reset, and ban-expiry clearing.
func (t *PeerTable) CheckPeer(addr proto.Address, chargeTicket bool, now time.Time) (*PeerRecord, bool) {
	t.mu.Lock()
	rec, exists := t.byAddr[addr]
	if !exists {
		rec = &PeerRecord{
			Address:           addr,
			TsCreated:         now,
			TsLastSeen:        now,
			TsLastTicketReset: now,
		}
		t.byAddr[addr] = rec
		t.sweepOrder = append(t.sweepOrder, addr)
	}
	t.mu.Unlock()

	if chargeTicket {
		t.Rep(rec, 1, now)
	}

	t.mu.Lock()
	if !rec.TsLastTicketReset.IsZero() && now.Sub(rec.TsLastTicketReset) >= t.cfg.TicketResetPeriod {
		rec.Tickets = 0
		rec.TsLastTicketReset = now
	}
	if !rec.TsBannedUntil.IsZero() && !rec.TsBannedUntil.After(now) {
		rec.TsBannedUntil = time.Time{}
		rec.TsLastSeen = now
	}
	allowed := rec.TsBannedUntil.IsZero()
	t.mu.Unlock()

	return rec, allowed
}

// Rep applies a reputation delta, banning the peer and destroying its
// sessions when tickets cross MaxTickets (spec §4.4).
func (t *PeerTable) Rep(rec *PeerRecord, delta int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec.Tickets += delta
	rec.TsLastSeen = now
	if rec.Tickets >= t.cfg.MaxTickets {
		rec.TsBannedUntil = now.Add(t.cfg.BanDuration)
		rec.Tickets = 0
		rec.TotalBans++
		rec.Sessions = nil
	}
}

// ExpireSessions drops sessions past SessionTimeout, or every session when
// forceAll is set.
func (t *PeerTable) ExpireSessions(rec *PeerRecord, forceAll bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireSessionsLocked(rec, forceAll, now)
}

func (t *PeerTable) expireSessionsLocked(rec *PeerRecord, forceAll bool, now time.Time) {
	if forceAll {
		rec.Sessions = nil
		return
	}
	kept := rec.Sessions[:0:0]
	for _, s := range rec.Sessions {
		if now.Sub(s.TsLastUsed) > t.cfg.SessionTimeout {
			continue
		}
		kept = append(kept, s)
	}
	rec.Sessions = kept
}

// Sweep visits up to budget peer records in persistent round-robin order
// (mirroring Registry.Sweep): live/banned peers get CheckPeer(chargeTicket=
// false) and ExpireSessions; peers past ForgetTime and unbanned are dropped
// entirely.
func (t *PeerTable) Sweep(budget int, now time.Time) (dropped int) {
	t.mu.Lock()
	if len(t.sweepOrder) == 0 {
		t.mu.Unlock()
		return 0
	}
	if t.sweepCursor >= len(t.sweepOrder) {
		t.sweepCursor = 0
	}
	start := t.sweepCursor
	n := len(t.sweepOrder)
	visited := 0

	var toCheck []*PeerRecord
	var toDrop []proto.Address
	for visited < budget && visited < n {
		idx := (start + visited) % n
		addr := t.sweepOrder[idx]
		visited++
		rec, ok := t.byAddr[addr]
		if !ok {
			continue
		}
		banned := !rec.TsBannedUntil.IsZero()
		if banned || now.Sub(rec.TsLastSeen) < t.cfg.ForgetTime {
			toCheck = append(toCheck, rec)
		} else {
			toDrop = append(toDrop, addr)
		}
	}

	for _, addr := range toDrop {
		delete(t.byAddr, addr)
		dropped++
	}
	survivors := make([]proto.Address, 0, len(t.sweepOrder))
	for _, addr := range t.sweepOrder {
		if _, ok := t.byAddr[addr]; ok {
			survivors = append(survivors, addr)
		}
	}
	t.sweepOrder = survivors
	if len(t.sweepOrder) == 0 {
		t.sweepCursor = 0
	} else {
		t.sweepCursor = (start + visited) % len(t.sweepOrder)
	}
	t.mu.Unlock()

	for _, rec := range toCheck {
		t.CheckPeer(rec.Address, false, now)
		t.ExpireSessions(rec, false, now)
	}
	return dropped
}

// Count returns the number of tracked peer records.
func (t *PeerTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byAddr)
}

// BannedCount returns the number of currently-banned peers.
func (t *PeerTable) BannedCount(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.byAddr {
		if !rec.TsBannedUntil.IsZero() && rec.TsBannedUntil.After(now) {
			n++
		}
	}
	return n
}
