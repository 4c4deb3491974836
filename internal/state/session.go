package state

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"masterd/internal/proto"
)

// Session is a per-query conversation, spec §3. Response pages are attached
// once Registry.Query has run; PackTotal is derived from len(Pages) and
// Total is recorded by SetResult.
type Session struct {
	Session     uint16
	Flags       uint8
	AuthSession uint32

	TsLastUsed time.Time

	Pages [][]byte
	total int
}

// Total reports the number of servers packed into Pages, if set by the
// caller via SetResult.
func (s *Session) Total() int { return s.total }

func (s *Session) PackTotal() int { return len(s.Pages) }

// SetResult attaches a Query result to the session (spec §4.3: "total" and
// "packTotal" are derivable from the result).
func (s *Session) SetResult(r QueryResult) {
	s.total = r.Total
	s.Pages = r.Pages
}

// CreateSession constructs a new session for rec, failing when the peer is
// already at MaxSessionsPerPeer (spec §4.6, hard cap 10).
func (t *PeerTable) CreateSession(rec *PeerRecord, h proto.Header) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(rec.Sessions) >= t.cfg.MaxSessionsPerPeer {
		return nil
	}
	s := &Session{
		Session:    h.Session,
		Flags:      h.Flags &^ proto.FlagAuthenticatedSession,
		TsLastUsed: time.Now(),
	}
	rec.Sessions = append(rec.Sessions, s)
	return s
}

// GetSession scans rec for a session matching the plain 16-bit session id,
// refreshing TsLastUsed on a hit.
func (t *PeerTable) GetSession(rec *PeerRecord, h proto.Header, now time.Time) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range rec.Sessions {
		if s.Session == h.Session {
			s.TsLastUsed = now
			return s
		}
	}
	return nil
}

// GetAuthenticatedSession scans rec for a session whose AuthSession matches
// the inbound header's Session field (the client echoes its granted
// authSession back as the session field). When none matches and mayCreate
// is set, it creates a fresh plain session instead.
func (t *PeerTable) GetAuthenticatedSession(rec *PeerRecord, h proto.Header, mayCreate bool, now time.Time) *Session {
	want := h.AuthSession
	if !h.Authenticated() {
		want = uint32(h.Session)
	}
	t.mu.Lock()
	for _, s := range rec.Sessions {
		if s.AuthSession != 0 && want == s.AuthSession {
			s.TsLastUsed = now
			t.mu.Unlock()
			return s
		}
	}
	t.mu.Unlock()
	if mayCreate {
		return t.CreateSession(rec, h)
	}
	return nil
}

// IssueChallenge grants the caller-supplied session s a fresh nonzero 32-bit
// authSession unique among rec's active sessions, returning false if no
// unique value was found within a small number of attempts. s must be
// non-nil; no session is created here.
// Grounded on spec §4.6 and original_source/include/SessionHandler.h's
// session-challenge handshake, which exists to defend against source-address
// spoofing: only a peer that actually receives the reply can learn the
// authSession needed to continue the conversation.
func (t *PeerTable) IssueChallenge(rec *PeerRecord, s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	const maxAttempts = 16
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := randU32()
		if candidate == 0 {
			continue
		}
		if !authSessionInUse(rec, candidate) {
			s.AuthSession = candidate
			s.Flags |= proto.FlagAuthenticatedSession | proto.FlagNewStyleResponse
			return true
		}
	}
	return false
}

func authSessionInUse(rec *PeerRecord, candidate uint32) bool {
	for _, s := range rec.Sessions {
		if s.AuthSession == candidate {
			return true
		}
	}
	return false
}

func randU32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
