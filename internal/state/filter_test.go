package state

import (
	"net"
	"testing"
	"time"

	"masterd/internal/proto"
)

func TestPackPages_FillsPagesToCapacity(t *testing.T) {
	r := NewRegistry(time.Hour, false, nil)
	now := time.Now()
	// floor(MaxListPayload/7) new-style IPv4 servers fit on one page.
	perPage := proto.MaxListPayload / 7
	for i := 0; i < perPage+1; i++ {
		ip := net.IPv4(10, 0, byte(i>>8), byte(i))
		a := proto.AddressFromUDP(&net.UDPAddr{IP: ip, Port: 1000})
		r.Update(a, ServerUpdate{GameType: "CTF"}, now)
	}
	res := r.Query(ServerFilter{GameType: "any"})
	if res.PackTotal != 2 {
		t.Fatalf("expected overflow onto a second page, got %d pages for %d servers", res.PackTotal, res.Total)
	}
}

func TestPackPages_CapsAt254Pages(t *testing.T) {
	r := NewRegistry(time.Hour, false, nil)
	now := time.Now()
	perPage := proto.MaxListPayload / 7
	total := perPage*proto.MaxPages + perPage // one page's worth beyond the cap
	for i := 0; i < total; i++ {
		ip := net.IPv4(byte(i>>24), byte(i>>16), byte(i>>8), byte(i))
		a := proto.AddressFromUDP(&net.UDPAddr{IP: ip, Port: 1000})
		r.Update(a, ServerUpdate{GameType: "CTF"}, now)
	}
	res := r.Query(ServerFilter{GameType: "any"})
	if res.PackTotal > proto.MaxPages {
		t.Fatalf("expected page count capped at %d, got %d", proto.MaxPages, res.PackTotal)
	}
}

func TestMatches_BuddyListRejectsServerWithoutGUIDs(t *testing.T) {
	r := NewRegistry(time.Hour, false, nil)
	info := &ServerInfo{}
	f := ServerFilter{BuddyList: []uint32{42}}
	if r.matches(f, info, 0, 0, true, true) {
		t.Fatalf("expected buddy filter to reject a server with no playerGuids")
	}
}

func TestMatches_BuddyListAcceptsOverlap(t *testing.T) {
	r := NewRegistry(time.Hour, false, nil)
	info := &ServerInfo{PlayerGUIDs: []uint32{1, 42, 3}}
	f := ServerFilter{BuddyList: []uint32{99, 42}}
	if !r.matches(f, info, 0, 0, true, true) {
		t.Fatalf("expected buddy filter to accept overlapping GUID")
	}
}

func TestFilter_NormalizeRaisesMaxToMinPlayers(t *testing.T) {
	f := ServerFilter{MinPlayers: 10, MaxPlayers: 2}
	f.Normalize()
	if f.MaxPlayers != 10 {
		t.Fatalf("expected MaxPlayers raised to MinPlayers, got %d", f.MaxPlayers)
	}
}
