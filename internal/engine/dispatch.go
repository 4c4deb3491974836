package engine

import (
	"log/slog"
	"time"

	"masterd/internal/config"
	"masterd/internal/metrics"
	"masterd/internal/proto"
	"masterd/internal/state"
	"masterd/internal/transport"
)

// Dispatcher routes decoded packets into registry and peer-table
// operations and queues outbound replies. Grounded on
// original_source/masterd/TorqueIO.cc's handle*/send* function pairs and
// core.cc's packet switch.
type Dispatcher struct {
	registry   *state.Registry
	peers      *state.PeerTable
	cfg        config.Config
	log        *slog.Logger
	out        chan transport.Outbound
	serverName string
	metrics    *metrics.Collector
}

func NewDispatcher(registry *state.Registry, peers *state.PeerTable, cfg config.Config, log *slog.Logger, out chan transport.Outbound) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry:   registry,
		peers:      peers,
		cfg:        cfg,
		log:        log,
		out:        out,
		serverName: cfg.Name,
	}
}

// WithMetrics attaches a Collector so Handle/send can record packet
// counters. Optional; a nil Collector leaves metrics unrecorded.
func (d *Dispatcher) WithMetrics(c *metrics.Collector) *Dispatcher {
	d.metrics = c
	return d
}

// msgContext carries everything a single packet's handlers need, mirroring
// the shape of original_source's tMessageSession without the C++ pointer
// plumbing.
type msgContext struct {
	src    proto.Address
	socket int
	header proto.Header
	body   *proto.Packet
	peer   *state.PeerRecord
	now    time.Time
}

func (d *Dispatcher) send(ctx msgContext, payload []byte) {
	d.out <- transport.Outbound{Payload: payload, Dest: ctx.src, Socket: ctx.socket}
	if d.metrics != nil && len(payload) > 0 {
		d.metrics.PacketsSent.WithLabelValues(proto.PacketType(payload[0]).String()).Inc()
	}
}

// Handle implements spec §4.5's dispatcher: CheckPeer, decode header, then
// switch on packet type. Malformed packets and unknown types are penalised
// identically via the flood-control ticket charge.
func (d *Dispatcher) Handle(dg transport.Datagram, now time.Time) {
	rec, allowed := d.peers.CheckPeer(dg.Source, true, now)
	if !allowed {
		d.recvMetric("banned")
		return
	}

	r := proto.NewReader(dg.Payload)
	header := r.ReadHeader()
	if !r.OK() {
		d.peers.Rep(rec, d.cfg.Flood.TicksOnBadMessage, now)
		d.recvMetric("malformed")
		return
	}

	ctx := msgContext{src: dg.Source, socket: dg.Socket, header: header, body: r, peer: rec, now: now}

	var ok bool
	switch header.Type {
	case proto.GameHeartbeat:
		ok = d.handleHeartbeat(ctx)
	case proto.GameMasterInfoResponse:
		ok = d.handleInfoResponse(ctx)
	case proto.MasterServerGameTypesRequest:
		ok = d.handleTypesRequest(ctx)
	case proto.MasterServerListRequest:
		ok = d.handleListRequest(ctx, false)
	case proto.MasterServerExtendedListRequest:
		ok = d.handleListRequest(ctx, true)
	case proto.MasterServerInfoRequest:
		ok = d.handleInfoRequest(ctx)
	default:
		d.log.Warn("unknown packet type", "type", uint8(header.Type), "src", dg.Source.String())
		ok = false
	}

	if !ok {
		d.peers.Rep(rec, d.cfg.Flood.TicksOnBadMessage, now)
		d.recvMetric("rejected")
		return
	}
	d.recvMetric("accepted")
}

func (d *Dispatcher) recvMetric(outcome string) {
	if d.metrics != nil {
		d.metrics.PacketsReceived.WithLabelValues(outcome).Inc()
	}
}
