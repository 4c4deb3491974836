package state

import (
	"testing"
	"time"

	"masterd/internal/proto"
)

func headerWithSession(session uint16) proto.Header {
	return proto.Header{Session: session, Key: 0xAAAA}
}

func TestCreateSession_FailsAtHardCap(t *testing.T) {
	cfg := testFloodConfig()
	cfg.MaxSessionsPerPeer = 2
	pt := NewPeerTable(cfg)
	rec := &PeerRecord{}

	if s := pt.CreateSession(rec, headerWithSession(1)); s == nil {
		t.Fatalf("expected first session to succeed")
	}
	if s := pt.CreateSession(rec, headerWithSession(2)); s == nil {
		t.Fatalf("expected second session to succeed")
	}
	if s := pt.CreateSession(rec, headerWithSession(3)); s != nil {
		t.Fatalf("expected third session to fail at hard cap")
	}
}

func TestGetSession_MatchesPlainSessionAndRefreshes(t *testing.T) {
	pt := NewPeerTable(testFloodConfig())
	rec := &PeerRecord{}
	pt.CreateSession(rec, headerWithSession(7))

	now := time.Now().Add(time.Hour)
	got := pt.GetSession(rec, headerWithSession(7), now)
	if got == nil {
		t.Fatalf("expected session match on session id 7")
	}
	if !got.TsLastUsed.Equal(now) {
		t.Fatalf("expected TsLastUsed refreshed")
	}
}

func TestGetAuthenticatedSession_MatchesEchoedAuthSession(t *testing.T) {
	pt := NewPeerTable(testFloodConfig())
	rec := &PeerRecord{}
	s := pt.CreateSession(rec, headerWithSession(7))
	pt.IssueChallenge(rec, s)

	echoed := proto.Header{Flags: proto.FlagAuthenticatedSession, AuthSession: s.AuthSession}
	got := pt.GetAuthenticatedSession(rec, echoed, false, time.Now())
	if got != s {
		t.Fatalf("expected echoed authSession to resolve back to the issued session")
	}
}

func TestGetAuthenticatedSession_CreatesWhenMayCreate(t *testing.T) {
	pt := NewPeerTable(testFloodConfig())
	rec := &PeerRecord{}
	got := pt.GetAuthenticatedSession(rec, headerWithSession(5), true, time.Now())
	if got == nil {
		t.Fatalf("expected session created when mayCreate is set")
	}
}

func TestIssueChallenge_SetsFlags(t *testing.T) {
	pt := NewPeerTable(testFloodConfig())
	rec := &PeerRecord{}
	s := pt.CreateSession(rec, headerWithSession(1))
	if !pt.IssueChallenge(rec, s) {
		t.Fatalf("expected challenge issuance to succeed")
	}
	if s.AuthSession == 0 {
		t.Fatalf("expected nonzero authSession")
	}
	if s.Flags&proto.FlagAuthenticatedSession == 0 || s.Flags&proto.FlagNewStyleResponse == 0 {
		t.Fatalf("expected AuthenticatedSession|NewStyleResponse flags set, got %#x", s.Flags)
	}
}

func TestExpireSessions_DropsPastTimeout(t *testing.T) {
	cfg := testFloodConfig()
	cfg.SessionTimeout = time.Second
	pt := NewPeerTable(cfg)
	rec := &PeerRecord{}
	pt.CreateSession(rec, headerWithSession(1))

	pt.ExpireSessions(rec, false, time.Now().Add(2*time.Second))
	if len(rec.Sessions) != 0 {
		t.Fatalf("expected session expired, got %d remaining", len(rec.Sessions))
	}
}

func TestExpireSessions_ForceAllDropsEverySession(t *testing.T) {
	pt := NewPeerTable(testFloodConfig())
	rec := &PeerRecord{}
	pt.CreateSession(rec, headerWithSession(1))
	pt.ExpireSessions(rec, true, time.Now())
	if len(rec.Sessions) != 0 {
		t.Fatalf("expected forceAll to drop all sessions")
	}
}
