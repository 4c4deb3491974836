package state

import (
	"log/slog"

	"masterd/internal/proto"
)

// ServerFilter is the decoded body of a fresh MasterServerListRequest, per
// spec §4.3's filter table. Zero/empty fields mean "no constraint" except
// where noted.
type ServerFilter struct {
	GameType    string
	MissionType string

	MinPlayers uint8
	MaxPlayers uint8

	Regions     uint32
	Version     uint32
	FilterFlags uint8
	MaxBots     uint8
	MinCPUSpeed uint32

	BuddyList []uint32

	// OldStyle is true when the originating session had NewStyleResponse
	// unset; IPv6 servers are then unconditionally excluded.
	OldStyle bool
}

// Normalize applies spec §4.5's fresh-query normalisation: when MaxPlayers
// is set below MinPlayers, it is raised to match.
func (f *ServerFilter) Normalize() {
	if f.MaxPlayers > 0 && f.MaxPlayers < f.MinPlayers {
		f.MaxPlayers = f.MinPlayers
	}
}

// matches reports whether info passes every non-zero filter constraint.
func (r *Registry) matches(f ServerFilter, info *ServerInfo, resolvedGameType, resolvedMissionType Handle, gameTypeOK, missionTypeOK bool) bool {
	if f.OldStyle && info.Address.IsV6() {
		return false
	}
	if f.GameType != "" && !isAny(f.GameType) {
		if !gameTypeOK || info.GameType != resolvedGameType {
			return false
		}
	}
	if f.MissionType != "" && !isAny(f.MissionType) {
		if !missionTypeOK || info.MissionType != resolvedMissionType {
			return false
		}
	}
	if f.MinPlayers > 0 && info.PlayerCount < f.MinPlayers {
		return false
	}
	if f.MaxPlayers > 0 && info.PlayerCount > f.MaxPlayers {
		return false
	}
	if f.Regions != 0 && info.Regions&f.Regions == 0 {
		return false
	}
	if f.Version > 0 && info.Version < f.Version {
		return false
	}
	if f.FilterFlags != 0 && info.InfoFlags&f.FilterFlags == 0 {
		return false
	}
	if f.MaxBots > 0 && info.BotCount > f.MaxBots {
		return false
	}
	if f.MinCPUSpeed > 0 && info.CPUSpeedMHz < f.MinCPUSpeed {
		return false
	}
	if len(f.BuddyList) > 0 {
		if !hasAnyBuddy(f.BuddyList, info.PlayerGUIDs) {
			return false
		}
	}
	return true
}

func hasAnyBuddy(buddies, guids []uint32) bool {
	if len(guids) == 0 {
		return false
	}
	for _, b := range buddies {
		for _, g := range guids {
			if b == g {
				return true
			}
		}
	}
	return false
}

// QueryResult carries the packed response pages plus the derived counts
// spec §4.3 requires a Session to expose after Query.
type QueryResult struct {
	Total     int
	PackTotal int
	Pages     [][]byte
}

// Query evaluates f against every live record and packs matches into
// response pages, each at most proto.MaxListPayload bytes, using the
// wire layout from spec §4.3 (old-style 6-byte or new-style 7/19-byte
// per-server records). Grounded on original_source/masterd/
// ServerStoreRAM.cc's ListPacketBuilder, which packs greedily and finalises
// a page as soon as the next record would overflow it.
func (r *Registry) Query(f ServerFilter) QueryResult {
	f.Normalize()

	gtHandle, gtOK := r.LookupGameTypeHandle(f.GameType)
	if f.GameType != "" && !isAny(f.GameType) && !gtOK {
		return QueryResult{}
	}
	mtHandle, mtOK := r.LookupGameTypeHandle(f.MissionType)
	if f.MissionType != "" && !isAny(f.MissionType) && !mtOK {
		return QueryResult{}
	}

	all := r.snapshot()
	var matched []*ServerInfo
	for i := range all {
		info := &all[i]
		if r.matches(f, info, gtHandle, mtHandle, gtOK, mtOK) {
			matched = append(matched, info)
		}
	}

	return packPages(matched, f.OldStyle, r.log)
}

func packPages(servers []*ServerInfo, oldStyle bool, log *slog.Logger) QueryResult {
	var result QueryResult
	var page []byte
	var pageCount uint16

	flush := func() {
		prefix := make([]byte, 2)
		prefix[0] = byte(pageCount)
		prefix[1] = byte(pageCount >> 8)
		result.Pages = append(result.Pages, append(prefix, page...))
		page = nil
		pageCount = 0
	}
	truncated := false

	for _, info := range servers {
		if len(result.Pages) >= proto.MaxPages {
			truncated = true
			break
		}
		if info.Address.IsV6() && oldStyle {
			continue
		}

		rec := encodeServerRecord(info, oldStyle)
		if len(page)+len(rec) > proto.MaxListPayload && pageCount > 0 {
			flush()
			if len(result.Pages) >= proto.MaxPages {
				truncated = true
				break
			}
		}
		page = append(page, rec...)
		pageCount++
		result.Total++
	}
	if pageCount > 0 || len(result.Pages) == 0 {
		flush()
	}
	if truncated && log != nil {
		log.Warn("registry: query result truncated at page cap", "cap", proto.MaxPages)
	}
	result.PackTotal = len(result.Pages)
	return result
}

func encodeServerRecord(info *ServerInfo, oldStyle bool) []byte {
	addr := info.Address
	if oldStyle {
		buf := make([]byte, 6)
		b4 := addr.Bytes4()
		copy(buf[0:4], b4[:])
		buf[4] = byte(addr.Port())
		buf[5] = byte(addr.Port() >> 8)
		return buf
	}
	if addr.IsV6() {
		buf := make([]byte, 19)
		buf[0] = 1 // addrType: v6
		b16 := addr.Bytes16()
		copy(buf[1:17], b16[:])
		buf[17] = byte(addr.Port())
		buf[18] = byte(addr.Port() >> 8)
		return buf
	}
	buf := make([]byte, 7)
	buf[0] = 0 // addrType: v4
	b4 := addr.Bytes4()
	copy(buf[1:5], b4[:])
	buf[5] = byte(addr.Port())
	buf[6] = byte(addr.Port() >> 8)
	return buf
}
