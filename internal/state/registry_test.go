package state

import (
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"masterd/internal/proto"
)

func addr(ip string, port int) proto.Address {
	return proto.AddressFromUDP(&net.UDPAddr{IP: net.ParseIP(ip), Port: port})
}

func TestRegistry_UpdateInsertsAndStampsRegionBits(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	now := time.Now()
	a := addr("10.0.0.1", 28000)
	r.Update(a, ServerUpdate{GameType: "CTF", MissionType: "Flag", PlayerCount: 4, MaxPlayers: 16}, now)

	if r.Count() != 1 {
		t.Fatalf("expected 1 record, got %d", r.Count())
	}
	info := r.byAddr[a]
	if info.Regions&RegionBitIPv4 == 0 || info.Regions&RegionBitIPv6 != 0 {
		t.Fatalf("expected only IPv4 region bit set, got %#x", info.Regions)
	}
}

func TestRegistry_UpdatePreservesSenderRegionBitsButRecomputesFamily(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	now := time.Now()
	a := addr("10.0.0.1", 28000)

	const geoBit uint32 = 1 << 3
	// A sender claiming the IPv6 family bit over an IPv4 address must not
	// get to set it; the registry always recomputes bits 30/31 itself.
	r.Update(a, ServerUpdate{GameType: "CTF", Regions: geoBit | RegionBitIPv6}, now)

	info := r.byAddr[a]
	if info.Regions&geoBit == 0 {
		t.Fatalf("expected sender-supplied geographic region bit preserved, got %#x", info.Regions)
	}
	if info.Regions&RegionBitIPv4 == 0 || info.Regions&RegionBitIPv6 != 0 {
		t.Fatalf("expected family bits recomputed from address regardless of sender, got %#x", info.Regions)
	}
}

func TestRegistry_UpdateRefreshReleasesPreviousIntern(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	now := time.Now()
	a := addr("10.0.0.1", 28000)
	r.Update(a, ServerUpdate{GameType: "CTF"}, now)
	r.Update(a, ServerUpdate{GameType: "DM"}, now)

	if _, ok := r.pool.Lookup("CTF"); ok {
		t.Fatalf("expected CTF released after refresh to DM")
	}
	if _, ok := r.pool.Lookup("DM"); !ok {
		t.Fatalf("expected DM present after refresh")
	}
}

func TestRegistry_SweepDropsExpiredExceptTestServerUnderTestingMode(t *testing.T) {
	r := NewRegistry(10*time.Second, true, nil)
	now := time.Now()
	stale := now.Add(-time.Minute)

	normal := addr("10.0.0.1", 1000)
	testSrv := addr("10.0.0.2", 1000)
	r.Update(normal, ServerUpdate{GameType: "CTF"}, stale)
	r.Update(testSrv, ServerUpdate{GameType: "CTF", TestServer: true}, stale)

	dropped := r.Sweep(10, now)
	if dropped != 1 {
		t.Fatalf("expected exactly 1 drop, got %d", dropped)
	}
	if r.Count() != 1 {
		t.Fatalf("expected test server retained, count=%d", r.Count())
	}
}

func TestRegistry_SeedSyntheticOnlyUnderTestingMode(t *testing.T) {
	live := NewRegistry(time.Minute, true, nil)
	live.SeedSynthetic(time.Now())
	if live.Count() != len(syntheticServers) {
		t.Fatalf("expected %d synthetic servers, got %d", len(syntheticServers), live.Count())
	}

	off := NewRegistry(time.Minute, false, nil)
	off.SeedSynthetic(time.Now())
	if off.Count() != 0 {
		t.Fatalf("expected SeedSynthetic to be a no-op without testingMode, got count=%d", off.Count())
	}
}

func TestRegistry_SweepCursorPersistsAcrossCalls(t *testing.T) {
	r := NewRegistry(time.Hour, false, nil)
	now := time.Now()
	for i := 0; i < 5; i++ {
		r.Update(addr("10.0.0.1", 1000+i), ServerUpdate{GameType: "CTF"}, now)
	}
	// Budget of 2 per call; after 3 calls we should have visited all 5 at
	// least once without any drops (none are expired).
	r.Sweep(2, now)
	r.Sweep(2, now)
	r.Sweep(2, now)
	if r.Count() != 5 {
		t.Fatalf("expected no drops for fresh records, count=%d", r.Count())
	}
	// Visits were 0,1 then 2,3 then 4,0, leaving the cursor at index 1.
	if r.sweepCursor != 1 {
		t.Fatalf("expected sweep cursor to persist across calls at index 1, got %d", r.sweepCursor)
	}
}

func TestRegistry_QueryGameTypeNotInPoolShortCircuits(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	now := time.Now()
	r.Update(addr("10.0.0.1", 1000), ServerUpdate{GameType: "CTF"}, now)

	res := r.Query(ServerFilter{GameType: "NoSuchType"})
	if res.Total != 0 || res.PackTotal != 0 {
		t.Fatalf("expected zero results for unseen gameType, got %+v", res)
	}
}

func TestRegistry_QueryFilterMatch(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	now := time.Now()
	r.Update(addr("10.0.0.1", 1000), ServerUpdate{GameType: "CTF", Version: 1000}, now)
	r.Update(addr("10.0.0.2", 1000), ServerUpdate{GameType: "DM", Version: 900}, now)

	res := r.Query(ServerFilter{GameType: "ctf", Version: 950})
	if res.Total != 1 {
		t.Fatalf("expected 1 match, got %d", res.Total)
	}
	if res.PackTotal != 1 {
		t.Fatalf("expected 1 page, got %d", res.PackTotal)
	}
}

func TestRegistry_QueryOldStyleExcludesIPv6(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	now := time.Now()
	r.Update(addr("10.0.0.1", 1000), ServerUpdate{GameType: "CTF"}, now)
	r.Update(addr("::1", 1000), ServerUpdate{GameType: "CTF"}, now)

	res := r.Query(ServerFilter{GameType: "any", OldStyle: true})
	if res.Total != 1 {
		t.Fatalf("expected old-style query to exclude IPv6 server, got total=%d", res.Total)
	}
}

func TestRegistry_GameTypesAndMissionTypesAreDeduped(t *testing.T) {
	r := NewRegistry(time.Minute, false, nil)
	now := time.Now()
	r.Update(addr("10.0.0.1", 1000), ServerUpdate{GameType: "CTF", MissionType: "Ambush"}, now)
	r.Update(addr("10.0.0.2", 1000), ServerUpdate{GameType: "CTF", MissionType: "Beachhead"}, now)
	r.Update(addr("10.0.0.3", 1000), ServerUpdate{GameType: "DM", MissionType: "Ambush"}, now)

	wantGameTypes := []string{"CTF", "DM"}
	if diff := cmp.Diff(wantGameTypes, r.GameTypes(), cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("GameTypes() mismatch (-want +got):\n%s", diff)
	}

	wantMissionTypes := []string{"Ambush", "Beachhead"}
	if diff := cmp.Diff(wantMissionTypes, r.MissionTypes(), cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("MissionTypes() mismatch (-want +got):\n%s", diff)
	}
}
