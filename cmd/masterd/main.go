// Command masterd runs the Pushbutton-style UDP master server: it tracks
// heartbeating game servers, answers client list/info/types queries, and
// polices abusive peers, exposing a small status/metrics HTTP surface
// alongside the UDP protocol listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"masterd/internal/config"
	"masterd/internal/engine"
	"masterd/internal/metrics"
	"masterd/internal/packetlog"
	"masterd/internal/pidfile"
	"masterd/internal/proto"
	"masterd/internal/state"
	"masterd/internal/statuspage"
	"masterd/internal/transport"
)

// version is set at build time via -ldflags; left as a literal default
// so `masterd version` is meaningful from a plain `go build`.
var version = "dev"

func fatal(msg string, err error, attrs ...any) {
	args := make([]any, 0, 2+len(attrs))
	args = append(args, "err", err)
	args = append(args, attrs...)
	slog.Error(msg, args...)
	os.Exit(1)
}

// preflightPort fails fast with a clear message when the UDP bind port is
// already held by another process, rather than surfacing a confusing
// error later from inside the transport layer.
func preflightPort(port int) error {
	addr := fmt.Sprintf(":%d", port)
	udpConn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("port %d unavailable for udp listen: %w", port, err)
	}
	return udpConn.Close()
}

func toFloodConfig(cfg config.Config) state.FloodConfig {
	return state.FloodConfig{
		MaxTickets:         cfg.Flood.MaxTickets,
		TicketResetPeriod:  cfg.Flood.TicketResetPeriod,
		BanDuration:        cfg.Flood.BanDuration,
		ForgetTime:         cfg.Flood.ForgetTime,
		TicksOnBadMessage:  cfg.Flood.TicksOnBadMessage,
		MaxSessionsPerPeer: cfg.MaxSessionsPerPeer,
		SessionTimeout:     cfg.SessionTimeout,
	}
}

func newRootCmd() *cobra.Command {
	var prefsPath string

	root := &cobra.Command{
		Use:   "masterd",
		Short: "Legacy UDP master server for heartbeating game servers",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the master server daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(prefsPath)
		},
	}
	serve.Flags().StringVar(&prefsPath, "prefs", "masterd.prf", "path to the legacy prefs file (written with defaults if missing; empty reads no prefs file)")
	root.AddCommand(serve)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the masterd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(prefsPath string) error {
	runID := proto.MakeRunID()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("run_id", runID))

	cfg, err := config.Load(prefsPath)
	if err != nil {
		fatal("config load failed", err)
	}
	logOpts := &slog.HandlerOptions{Level: verbosityToLevel(cfg.Verbosity)}
	if !cfg.Timestamp {
		logOpts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, logOpts)).With("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP is reserved for future config reload (spec §6.5); for now it is
	// logged and otherwise ignored rather than terminating the process.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				slog.Info("SIGHUP received, reload not yet implemented, ignoring")
			}
		}
	}()

	go func() {
		<-ctx.Done()
		t := time.NewTimer(60 * time.Second)
		defer t.Stop()
		<-t.C
		slog.Error("shutdown timed out after 60s, forcing exit")
		os.Exit(2)
	}()

	slog.Info("starting masterd",
		"name", cfg.Name,
		"region", cfg.Region,
		"addresses", cfg.Addresses,
		"port", cfg.Port,
		"status_port", cfg.StatusPort,
		"challenge_mode", cfg.ChallengeMode,
	)

	if err := pidfile.Write(cfg.PIDFile); err != nil {
		fatal("pidfile write failed", err, "path", cfg.PIDFile)
	}
	defer func() {
		if err := pidfile.Remove(cfg.PIDFile); err != nil {
			slog.Warn("pidfile remove failed", "path", cfg.PIDFile, "err", err)
		}
	}()

	var pl *packetlog.Logger
	if cfg.PacketLogPath != "" {
		pl, err = packetlog.New(cfg.PacketLogPath)
		if err != nil {
			fatal("open ndjson telemetry file failed", err, "path", cfg.PacketLogPath)
		}
		defer func() { _ = pl.Close() }()
		slog.Info("ndjson telemetry enabled", "path", cfg.PacketLogPath)
	}

	if err := preflightPort(cfg.Port); err != nil {
		fatal("listen port preflight failed", err, "port", cfg.Port)
	}

	tr, err := transport.Listen(cfg.Addresses, cfg.Port)
	if err != nil {
		fatal("udp transport listen failed", err, "addresses", cfg.Addresses)
	}
	defer func() { _ = tr.Close() }()

	registry := state.NewRegistry(cfg.HeartbeatTimeout, cfg.TestingMode, slog.Default())
	if cfg.TestingMode {
		registry.SeedSynthetic(time.Now())
		slog.Info("testing mode enabled, seeded synthetic servers")
	}
	peers := state.NewPeerTable(toFloodConfig(cfg))

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	e := engine.New(cfg, registry, peers, tr, slog.Default(), pl).WithMetrics(collector)

	statusAddr := fmt.Sprintf(":%d", cfg.StatusPort)
	if _, err := statuspage.Start(ctx, statusAddr, func() statuspage.Data {
		return statuspage.Data{
			Name:              cfg.Name,
			Region:            cfg.Region,
			Version:           version,
			ServerTime:        time.Now().UTC().Format(time.RFC3339),
			ServersRegistered: registry.Count(),
			PeersTracked:      peers.Count(),
			PeersBanned:       peers.BannedCount(time.Now()),
		}
	}, reg); err != nil {
		fatal("status page start failed", err, "addr", statusAddr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := e.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		fatal("engine error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v >= 4:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
