package engine

import (
	"context"
	"log/slog"
	"time"

	"masterd/internal/config"
	"masterd/internal/metrics"
	"masterd/internal/packetlog"
	"masterd/internal/proto"
	"masterd/internal/state"
	"masterd/internal/transport"
)

// pollTimeout and sweepBudget implement spec §5's concurrency model: one
// loop iteration runs bounded housekeeping sweeps, then pumps pending
// datagrams with a short poll timeout.
const (
	pollTimeout = 10 * time.Millisecond
	sweepBudget = 5
)

// Engine drives the daemon's single-threaded event loop: housekeeping
// sweeps, transport polling, and dispatch. Grounded on the teacher's
// internal/dp8.Engine, which plays the same outer-loop role for the DP8
// session (Run, sendWorker, periodic sweeper) though with multiple
// goroutines; this implementation keeps the send-worker idiom for
// non-blocking socket writes but keeps sweeps and dispatch on the single
// loop goroutine per spec §5's single-writer model.
type Engine struct {
	cfg        config.Config
	registry   *state.Registry
	peers      *state.PeerTable
	transport  transport.Transport
	dispatcher *Dispatcher
	log        *slog.Logger
	packetLog  *packetlog.Logger
	metrics    *metrics.Collector
	runID      string

	out chan transport.Outbound
}

func New(cfg config.Config, registry *state.Registry, peers *state.PeerTable, tr transport.Transport, log *slog.Logger, pl *packetlog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	out := make(chan transport.Outbound, 2048)
	return &Engine{
		cfg:        cfg,
		registry:   registry,
		peers:      peers,
		transport:  tr,
		dispatcher: NewDispatcher(registry, peers, cfg, log, out),
		log:        log,
		packetLog:  pl,
		runID:      proto.MakeRunID(),
		out:        out,
	}
}

// WithMetrics attaches a Collector to the engine and its dispatcher.
// Optional; call before Run.
func (e *Engine) WithMetrics(c *metrics.Collector) *Engine {
	e.metrics = c
	e.dispatcher.WithMetrics(c)
	return e
}

// Run executes the event loop until ctx is cancelled. It always returns a
// non-nil error: context.Canceled on a clean shutdown request.
func (e *Engine) Run(ctx context.Context) error {
	go e.sendWorker(ctx)

	e.log.Info("engine started", "run_id", e.runID, "heartbeat_timeout", e.cfg.HeartbeatTimeout)

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}

		now := time.Now()
		if dropped := e.registry.Sweep(sweepBudget, now); dropped > 0 {
			e.log.Debug("registry sweep dropped expired servers", "count", dropped)
			if e.metrics != nil {
				e.metrics.RegistrySweepDrops.Add(float64(dropped))
			}
		}
		if dropped := e.peers.Sweep(sweepBudget, now); dropped > 0 {
			e.log.Debug("peer sweep forgot peers", "count", dropped)
			if e.metrics != nil {
				e.metrics.PeerSweepDrops.Add(float64(dropped))
			}
		}
		if e.metrics != nil {
			e.metrics.ServersRegistered.Set(float64(e.registry.Count()))
			e.metrics.PeersTracked.Set(float64(e.peers.Count()))
			e.metrics.PeersBanned.Set(float64(e.peers.BannedCount(now)))
		}

		dg, ok, err := e.transport.Poll(pollTimeout)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if e.packetLog != nil {
			e.packetLog.Log(packetlog.Record{
				RunID:     e.runID,
				Timestamp: proto.NowTS(),
				Type:      "packet",
				Direction: "in",
				Source:    dg.Source.String(),
				Length:    len(dg.Payload),
			})
		}

		e.dispatcher.Handle(dg, now)
	}
}

// sendWorker drains queued replies onto the transport without blocking the
// dispatch loop, mirroring the teacher's internal/dp8.Engine.sendWorker.
func (e *Engine) sendWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-e.out:
			if err := e.transport.Send(out); err != nil {
				e.log.Warn("send failed", "dest", out.Dest.String(), "err", err)
				continue
			}
			if e.packetLog != nil {
				e.packetLog.Log(packetlog.Record{
					RunID:       e.runID,
					Timestamp:   proto.NowTS(),
					Type:        "packet",
					Direction:   "out",
					Destination: out.Dest.String(),
					Length:      len(out.Payload),
				})
			}
		}
	}
}
