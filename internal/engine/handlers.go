package engine

import (
	"sort"

	"masterd/internal/proto"
	"masterd/internal/state"
)

// authenticate implements spec §4.6's authentication policy. It returns nil
// when the handler must exit without proceeding (challenge sent, or
// authentication not yet complete).
func (d *Dispatcher) authenticate(ctx msgContext) *state.Session {
	if !d.cfg.ChallengeMode {
		return d.peers.CreateSession(ctx.peer, ctx.header)
	}

	s := d.peers.GetAuthenticatedSession(ctx.peer, ctx.header, true, ctx.now)
	if s == nil {
		return nil
	}
	if s.AuthSession != 0 {
		return s
	}
	d.issueChallenge(ctx, s)
	return nil
}

// issueChallenge implements spec §4.6/§4.4's IssueChallenge wire framing:
// echo the inbound 32-bit session verbatim when the header already bore
// AuthenticatedSession, otherwise write the issued 16-bit session and the
// original 16-bit key.
func (d *Dispatcher) issueChallenge(ctx msgContext, s *state.Session) {
	if !d.peers.IssueChallenge(ctx.peer, s) {
		d.log.Warn("failed to allocate unique authSession", "src", ctx.src.String())
		return
	}

	w := proto.NewWriter(16)
	// s.Flags now carries AuthenticatedSession, so the header's 32-bit
	// session field is the newly issued authSession.
	w.WriteHeader(proto.MasterServerChallenge, s.Flags, s.Session, ctx.header.Key, s.AuthSession)
	if ctx.header.Authenticated() {
		w.WriteU32(ctx.header.AuthSession)
	} else {
		w.WriteU16(ctx.header.Session)
		w.WriteU16(ctx.header.Key)
	}
	d.send(ctx, w.Bytes())
}

// handleHeartbeat implements spec §4.2/§4.3's heartbeat exchange: issue a
// fresh (session, key) pair and immediately request the server's info.
// Grounded on original_source/masterd/TorqueIO.cc's handleHeartbeat.
func (d *Dispatcher) handleHeartbeat(ctx msgContext) bool {
	session, key := d.registry.Heartbeat()
	w := proto.NewWriter(8)
	w.WriteHeader(proto.GameMasterInfoRequest, 0, session, key, 0)
	d.send(ctx, w.Bytes())
	return true
}

// handleInfoResponse decodes a GameMasterInfoResponse body and stores it in
// the registry. Field order grounded on original_source/masterd/
// TorqueIO.cc's handleInfoResponse.
func (d *Dispatcher) handleInfoResponse(ctx msgContext) bool {
	p := ctx.body
	gameType := p.ReadString()
	missionType := p.ReadString()
	maxPlayers := p.ReadU8()
	regions := p.ReadU32()
	version := p.ReadU32()
	infoFlags := p.ReadU8()
	numBots := p.ReadU8()
	cpuSpeed := p.ReadU32()
	numPlayers := p.ReadU8()

	if !p.OK() {
		return false
	}
	if !isPrintableASCIIString(gameType) || !isPrintableASCIIString(missionType) {
		return false
	}

	var guids []uint32
	if numPlayers > 0 && p.Remaining() >= int(numPlayers)*4 {
		guids = make([]uint32, numPlayers)
		for i := range guids {
			guids[i] = p.ReadU32()
		}
		if !p.OK() {
			return false
		}
	}

	d.registry.Update(ctx.src, state.ServerUpdate{
		GameType:    gameType,
		MissionType: missionType,
		Regions:     regions,
		MaxPlayers:  maxPlayers,
		Version:     version,
		CPUSpeedMHz: cpuSpeed,
		PlayerCount: numPlayers,
		BotCount:    numBots,
		InfoFlags:   infoFlags,
		PlayerGUIDs: guids,
		TestServer:  false,
	}, ctx.now)
	return true
}

// isPrintableASCIIString reports whether every byte of s is in [0x20,0x7E],
// matching original_source's isPrintableString gate on inbound strings.
func isPrintableASCIIString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

// handleTypesRequest replies with the registry's distinct gameType and
// missionType strings, truncating each list to fit the payload budget
// exactly as original_source/masterd/TorqueIO.cc's sendTypesResponse does.
func (d *Dispatcher) handleTypesRequest(ctx msgContext) bool {
	gameTypes := d.registry.GameTypes()
	missionTypes := d.registry.MissionTypes()
	sort.Strings(gameTypes)
	sort.Strings(missionTypes)

	gameTypes = truncateTypeList(gameTypes, proto.MaxListPayload/2)
	missionTypes = truncateTypeList(missionTypes, proto.MaxListPayload/2)

	w := proto.NewWriter(proto.MaxPacketSize)
	w.WriteHeader(proto.MasterServerGameTypesResponse, 0, ctx.header.Session, ctx.header.Key, ctx.header.AuthSession)
	w.WriteU8(uint8(len(gameTypes)))
	for _, s := range gameTypes {
		w.WriteString(s)
	}
	w.WriteU8(uint8(len(missionTypes)))
	for _, s := range missionTypes {
		w.WriteString(s)
	}
	d.send(ctx, w.Bytes())
	return true
}

// truncateTypeList stops as soon as the next string would overflow limit
// bytes (length prefix + content), and caps the list at 255 entries. It is
// applied unconditionally in a single pass; when the list already fits it
// is returned unchanged.
func truncateTypeList(all []string, limit int) []string {
	if len(all) > 0xFF {
		all = all[:0xFF]
	}
	used := 0
	for i, s := range all {
		if used+len(s)+1 > limit {
			return all[:i]
		}
		used += len(s) + 1
	}
	return all
}

// handleInfoRequest replies with the server's display name, region, and
// current server count. Capacity accounts for the worst case of two
// 255-byte (plus length-prefix) WriteString calls, since config.Load only
// clamps Name/Region to that bound rather than something tighter.
func (d *Dispatcher) handleInfoRequest(ctx msgContext) bool {
	w := proto.NewWriter(proto.HeaderSize + 2*256 + 2)
	w.WriteHeader(proto.MasterServerInfoResponse, 0, ctx.header.Session, ctx.header.Key, ctx.header.AuthSession)
	w.WriteString(d.cfg.Name)
	w.WriteString(d.cfg.Region)
	w.WriteU16(uint16(d.registry.Count()))
	d.send(ctx, w.Bytes())
	return true
}

// handleListRequest implements spec §4.5's list-request handler: resend
// path for packetIndex != 0xFF, fresh-query path otherwise.
func (d *Dispatcher) handleListRequest(ctx msgContext, extended bool) bool {
	p := ctx.body
	index := p.ReadU8()
	if !p.OK() {
		return false
	}

	if index != proto.InitialRequestIndex {
		s := d.peers.GetAuthenticatedSession(ctx.peer, ctx.header, false, ctx.now)
		if s == nil {
			s = d.peers.GetSession(ctx.peer, ctx.header, ctx.now)
		}
		if s == nil {
			// Absent session on a resend is silently ignored, no penalty.
			return true
		}
		d.sendListResponsePage(ctx, s, int(index), extended)
		return true
	}

	filter, ok := parseListFilter(p)
	if !ok {
		return false
	}
	filter.Normalize()

	s := d.authenticate(ctx)
	if s == nil {
		return true
	}
	if extended {
		// MasterServerExtendedListRequest implies NewStyleResponse even when
		// the inbound header's flag byte didn't carry it (spec §6.2).
		s.Flags |= proto.FlagNewStyleResponse
	}

	filter.OldStyle = s.Flags&proto.FlagNewStyleResponse == 0
	if filter.OldStyle {
		filter.Regions |= state.RegionBitIPv4
		filter.Regions &^= state.RegionBitIPv6
	} else if filter.Regions&(state.RegionBitIPv4|state.RegionBitIPv6) == 0 {
		filter.Regions |= state.RegionBitIPv4 | state.RegionBitIPv6
	}
	res := d.registry.Query(filter)
	s.SetResult(res)

	for i := 0; i < s.PackTotal(); i++ {
		d.sendListResponsePage(ctx, s, i, extended)
	}
	return true
}

// parseListFilter decodes the fresh-query filter body in the wire order
// grounded on original_source/masterd/TorqueIO.cc's handleListRequest:
// gameType, missionType, minPlayers, maxPlayers, regions, version,
// filterFlags, maxBots, minCPUSpeed(u16), buddyCount, buddyList[u32].
func parseListFilter(p *proto.Packet) (state.ServerFilter, bool) {
	var f state.ServerFilter
	f.GameType = p.ReadString()
	f.MissionType = p.ReadString()
	if !isPrintableASCIIString(f.GameType) || !isPrintableASCIIString(f.MissionType) {
		return f, false
	}
	f.MinPlayers = p.ReadU8()
	f.MaxPlayers = p.ReadU8()
	f.Regions = p.ReadU32()
	f.Version = p.ReadU32()
	f.FilterFlags = p.ReadU8()
	f.MaxBots = p.ReadU8()
	f.MinCPUSpeed = uint32(p.ReadU16())
	buddyCount := p.ReadU8()
	if buddyCount > 0 {
		f.BuddyList = make([]uint32, buddyCount)
		for i := range f.BuddyList {
			f.BuddyList[i] = p.ReadU32()
		}
	}
	if !p.OK() {
		return f, false
	}
	return f, true
}

// sendListResponsePage writes one page of a list response. pageIndex must
// be within [0, PackTotal); out-of-range resend requests are a no-op per
// spec §4.5.
func (d *Dispatcher) sendListResponsePage(ctx msgContext, s *state.Session, pageIndex int, extended bool) {
	if pageIndex < 0 || pageIndex >= s.PackTotal() {
		return
	}
	typ := proto.MasterServerListResponse
	if extended {
		typ = proto.MasterServerExtendedListResponse
	}

	page := s.Pages[pageIndex]
	w := proto.NewWriter(proto.HeaderSize + proto.ListResponseFixedPrefix + len(page))
	w.WriteHeader(typ, s.Flags, s.Session, ctx.header.Key, s.AuthSession)
	w.WriteU8(uint8(pageIndex))
	w.WriteU8(uint8(s.PackTotal()))
	w.WriteBytes(page)
	d.send(ctx, w.Bytes())

	if d.metrics != nil {
		style := "new"
		if s.Flags&proto.FlagNewStyleResponse == 0 {
			style = "old"
		}
		d.metrics.ListPagesSent.WithLabelValues(style).Inc()
	}
}
