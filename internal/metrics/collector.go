// Package metrics exposes masterd's runtime counters as Prometheus
// collectors, in the same shape the gobfd daemon exports its BFD session
// metrics: a namespaced Collector struct registered once at startup and
// poked by the engine as packets are handled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "masterd"

// Collector holds every Prometheus metric the daemon exports.
type Collector struct {
	// ServersRegistered tracks the current number of live game-server
	// records in the registry.
	ServersRegistered prometheus.Gauge

	// PeersTracked tracks the current number of known remote peers.
	PeersTracked prometheus.Gauge

	// PeersBanned tracks the current number of banned peers.
	PeersBanned prometheus.Gauge

	// PacketsReceived counts inbound datagrams by outcome (accepted,
	// rejected, malformed, banned).
	PacketsReceived *prometheus.CounterVec

	// PacketsSent counts outbound datagrams by packet type.
	PacketsSent *prometheus.CounterVec

	// ListPagesSent counts list-response pages sent, labeled by style
	// (old, new).
	ListPagesSent *prometheus.CounterVec

	// RegistrySweepDrops counts servers dropped by registry housekeeping.
	RegistrySweepDrops prometheus.Counter

	// PeerSweepDrops counts peers forgotten by peer-table housekeeping.
	PeerSweepDrops prometheus.Counter
}

// NewCollector builds and registers every metric against reg. If reg is
// nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		ServersRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "servers_registered",
			Help:      "Current number of live game-server records in the registry.",
		}),
		PeersTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_tracked",
			Help:      "Current number of known remote peers.",
		}),
		PeersBanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_banned",
			Help:      "Current number of banned peers.",
		}),
		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total inbound datagrams processed, by outcome.",
		}, []string{"outcome"}),
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total outbound datagrams sent, by packet type.",
		}, []string{"type"}),
		ListPagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_pages_sent_total",
			Help:      "Total list-response pages sent, by response style.",
		}, []string{"style"}),
		RegistrySweepDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_sweep_drops_total",
			Help:      "Total server records dropped by registry housekeeping sweeps.",
		}),
		PeerSweepDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_sweep_drops_total",
			Help:      "Total peers forgotten by peer-table housekeeping sweeps.",
		}),
	}

	reg.MustRegister(
		c.ServersRegistered,
		c.PeersTracked,
		c.PeersBanned,
		c.PacketsReceived,
		c.PacketsSent,
		c.ListPagesSent,
		c.RegistrySweepDrops,
		c.PeerSweepDrops,
	)

	return c
}
