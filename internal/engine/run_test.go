package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"masterd/internal/config"
	"masterd/internal/proto"
	"masterd/internal/state"
	"masterd/internal/transport"
)

// TestMain verifies Run's sendWorker goroutine always exits with its
// context, matching dantte-lp-gobfd's use of goleak in its own daemon
// test suite.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEngine_RunDispatchesFedDatagramAndSends(t *testing.T) {
	registry := state.NewRegistry(time.Minute, false, nil)
	peers := state.NewPeerTable(state.FloodConfig{
		MaxTickets:         300,
		TicketResetPeriod:  time.Minute,
		BanDuration:        time.Minute,
		ForgetTime:         time.Hour,
		TicksOnBadMessage:  50,
		MaxSessionsPerPeer: 10,
		SessionTimeout:     30 * time.Second,
	})
	cfg := config.Config{Name: "fixture-master", Region: "US", HeartbeatTimeout: time.Minute}
	fake := transport.NewFake()
	e := New(cfg, registry, peers, fake, nil, nil)

	w := proto.NewWriter(8)
	w.WriteHeader(proto.MasterServerInfoRequest, 0, 1, 2, 0)
	fake.Feed(transport.Datagram{
		Payload: w.Bytes(),
		Source:  testAddr("10.0.0.1", 28000),
		Socket:  0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := e.Run(ctx)
	if err != context.DeadlineExceeded && err != context.Canceled {
		t.Fatalf("unexpected Run error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(fake.Sent) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(fake.Sent) == 0 {
		t.Fatalf("expected at least one outbound reply")
	}

	rr := proto.NewReader(fake.Sent[0].Payload)
	h := rr.ReadHeader()
	if h.Type != proto.MasterServerInfoResponse {
		t.Fatalf("expected MasterServerInfoResponse reply, got %v", h.Type)
	}
}

func TestEngine_RunReturnsContextErrorOnCancel(t *testing.T) {
	registry := state.NewRegistry(time.Minute, false, nil)
	peers := state.NewPeerTable(state.FloodConfig{MaxTickets: 300, TicketResetPeriod: time.Minute, BanDuration: time.Minute, ForgetTime: time.Hour, MaxSessionsPerPeer: 10, SessionTimeout: 30 * time.Second})
	cfg := config.Config{Name: "fixture-master", HeartbeatTimeout: time.Minute}
	fake := transport.NewFake()
	e := New(cfg, registry, peers, fake, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Run(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
