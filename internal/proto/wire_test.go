package proto

import "testing"

func TestHeaderRoundTrip_Plain(t *testing.T) {
	w := NewWriter(16)
	w.WriteHeader(MasterServerListRequest, FlagNewStyleResponse, 0x1234, 0x5678, 0)
	if !w.OK() {
		t.Fatalf("write failed")
	}
	r := NewReader(w.Bytes())
	h := r.ReadHeader()
	if !r.OK() {
		t.Fatalf("read failed")
	}
	if h.Type != MasterServerListRequest || h.Flags != FlagNewStyleResponse || h.Session != 0x1234 || h.Key != 0x5678 {
		t.Fatalf("round trip mismatch: %+v", h)
	}
	if h.Authenticated() {
		t.Fatalf("expected non-authenticated header")
	}
}

func TestHeaderRoundTrip_Authenticated(t *testing.T) {
	w := NewWriter(16)
	flags := FlagAuthenticatedSession | FlagNewStyleResponse
	w.WriteHeader(MasterServerChallenge, flags, 0, 0, 0xDEADBEEF)
	r := NewReader(w.Bytes())
	h := r.ReadHeader()
	if !r.OK() {
		t.Fatalf("read failed")
	}
	if !h.Authenticated() || h.AuthSession != 0xDEADBEEF {
		t.Fatalf("round trip mismatch: %+v", h)
	}
}

func TestString_RoundTrip(t *testing.T) {
	w := NewWriter(32)
	w.WriteString("CTF")
	r := NewReader(w.Bytes())
	if got := r.ReadString(); got != "CTF" {
		t.Fatalf("got %q", got)
	}
}

func TestString_TruncatesOver255Bytes(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	w := NewWriter(400)
	w.WriteString(string(long))
	r := NewReader(w.Bytes())
	got := r.ReadString()
	if len(got) != 0xFF {
		t.Fatalf("expected truncation to 255 bytes, got %d", len(got))
	}
}

func TestRead_PastEnd_SetsNotOKAndReturnsZero(t *testing.T) {
	r := NewReader([]byte{0x01})
	_ = r.ReadU8()
	if !r.OK() {
		t.Fatalf("expected OK after single valid read")
	}
	v := r.ReadU8()
	if r.OK() {
		t.Fatalf("expected OK=false after reading past end")
	}
	if v != 0 {
		t.Fatalf("expected zero value past end, got %d", v)
	}
	// Cursor must not advance further; subsequent reads still return zero.
	if v2 := r.ReadU32(); v2 != 0 {
		t.Fatalf("expected zero on subsequent read, got %d", v2)
	}
}

func TestWrite_PastCapacity_SetsNotOK(t *testing.T) {
	w := NewWriter(0)
	w.WriteU32(42)
	if w.OK() {
		t.Fatalf("expected OK=false writing past a zero-capacity buffer")
	}
	if w.Len() != 0 {
		t.Fatalf("expected no bytes written, got %d", w.Len())
	}
}

func TestWrite_PastCapacity_PartialWriteLeavesPriorBytesIntact(t *testing.T) {
	w := NewWriter(2)
	w.WriteU8(0xAB)
	w.WriteU16(0x1234) // would push len to 3, over cap(2)
	if w.OK() {
		t.Fatalf("expected OK=false after the overflowing write")
	}
	if w.Len() != 1 || w.Bytes()[0] != 0xAB {
		t.Fatalf("expected the prior successful write preserved, got %v", w.Bytes())
	}
}

func TestPacketType_RoundTripsThroughAllValues(t *testing.T) {
	types := []PacketType{
		GameMasterInfoRequest, GameMasterInfoResponse, GameHeartbeat,
		MasterServerGameTypesRequest, MasterServerGameTypesResponse,
		MasterServerListRequest, MasterServerExtendedListRequest,
		MasterServerListResponse, MasterServerExtendedListResponse,
		MasterServerInfoRequest, MasterServerInfoResponse, MasterServerChallenge,
	}
	for _, typ := range types {
		w := NewWriter(8)
		w.WriteHeader(typ, 0, 1, 2, 0)
		r := NewReader(w.Bytes())
		h := r.ReadHeader()
		if h.Type != typ {
			t.Fatalf("type round trip failed: got %v want %v", h.Type, typ)
		}
	}
}
