//go:build unix

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/postalsys/dgram/internal/config"
	"github.com/postalsys/dgram/internal/health"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
	"github.com/postalsys/dgram/internal/poll"
	"github.com/postalsys/dgram/internal/udp"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	healthAddr string
}

// counters backs the health endpoints.
type counters struct {
	running  atomic.Bool
	sent     atomic.Uint64
	received atomic.Uint64
	failed   atomic.Uint64
	poller   *poll.Poller
}

func (c *counters) IsRunning() bool {
	return c.running.Load()
}

func (c *counters) Stats() health.Stats {
	return health.Stats{
		Endpoints:         c.poller.Len(),
		DatagramsSent:     c.sent.Load(),
		DatagramsReceived: c.received.Load(),
		SendFailures:      c.failed.Load(),
	}
}

// runtime wires the adapter to a poller, logging, metrics and the optional
// health server.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	adapter *udp.Adapter
	poller  *poll.Poller
	stats   *counters
	health  *health.Server
}

func newRuntime(flags *globalFlags) (*runtime, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	if flags.healthAddr != "" {
		cfg.Health.Enabled = true
		cfg.Health.Address = flags.healthAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	registry := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(registry)

	adapter, err := udp.NewAdapter(cfg.UDPSettings(), logger, m)
	if err != nil {
		return nil, err
	}

	poller := poll.New(logger)
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		adapter: adapter,
		poller:  poller,
		stats:   &counters{poller: poller},
	}

	if cfg.Health.Enabled {
		rt.health = health.NewServer(health.ServerConfig{
			Address:      cfg.Health.Address,
			ReadTimeout:  cfg.Health.ReadTimeout,
			WriteTimeout: cfg.Health.WriteTimeout,
		}, rt.stats, registry)
		if err := rt.health.Start(); err != nil {
			return nil, fmt.Errorf("failed to start health server: %w", err)
		}
		logger.Info("health server started", logging.KeyLocalAddr, rt.health.Address().String())
	}

	return rt, nil
}

// run drives the poller until ctx is done.
func (rt *runtime) run(ctx context.Context) error {
	rt.stats.running.Store(true)
	defer rt.stats.running.Store(false)

	return rt.poller.Run(ctx, rt.cfg.Poll.Interval)
}

func (rt *runtime) recordSend(res udp.SendResult) {
	if res.Status == udp.Sent {
		rt.stats.sent.Add(1)
		return
	}
	rt.stats.failed.Add(1)
	rt.logger.Debug("send not delivered", logging.KeyStatus, res.String(), logging.KeySize, res.Size)
}

// Close stops the health server.
func (rt *runtime) Close() error {
	if rt.health != nil {
		return rt.health.Stop()
	}
	return nil
}
