package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/config"
	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/transport"
)

// Gateway is the top-level orchestrator. It wires config, the upstream
// listener, downstream origins and the location registry together.
type Gateway struct {
	cfg     config.Config
	cfgPath string
	logger  *slog.Logger

	// transportFactory is injected for testing; nil uses the default.
	transportFactory transport.TransportFactory

	mu       sync.Mutex
	upstream *transport.Upstream
	dm       *transport.DownstreamManager

	// toolDefaults feeds the scrub_html tool the running scrub config.
	toolDefaults atomic.Pointer[config.ScrubConfig]
}

// New creates a Gateway from the given config and logger.
func New(cfg config.Config, logger *slog.Logger) *Gateway {
	return &Gateway{cfg: cfg, logger: logger}
}

// NewWithTransportFactory creates a Gateway with a custom transport factory
// (primarily for testing).
func NewWithTransportFactory(cfg config.Config, logger *slog.Logger, factory transport.TransportFactory) *Gateway {
	return &Gateway{cfg: cfg, logger: logger, transportFactory: factory}
}

// WatchConfig makes Run reload the configuration whenever path changes.
func (g *Gateway) WatchConfig(path string) *Gateway {
	g.cfgPath = path
	return g
}

// Run starts the gateway: probes downstream origins, registers locations
// and starts the upstream listener. Blocks until SIGINT/SIGTERM or ctx
// cancellation.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g.logger.Info("starting gateway")

	if err := g.start(ctx); err != nil {
		return err
	}
	defer g.closeDownstream()

	addr := g.cfg.Upstream.HTTP.Addr
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.logger.Info("upstream ready", "addr", addr)
		return g.upstream.Run(ctx)
	})
	if g.cfgPath != "" {
		eg.Go(func() error {
			return watchConfig(ctx, g.cfgPath, g.logger, func() { g.reload(ctx) })
		})
	}
	return eg.Wait()
}

// start creates the upstream listener and applies the initial config.
func (g *Gateway) start(ctx context.Context) error {
	g.upstream = transport.NewUpstream(g.cfg.Upstream, g.logger)
	if config.Enabled(g.cfg.Upstream.MCP.Enabled) {
		RegisterTools(g.upstream.Server, &g.toolDefaults)
	}
	return g.apply(ctx, g.cfg)
}

// apply builds origins and locations for cfg and swaps them in, making
// cfg the running config. The previous downstream manager is closed only
// after the swap.
func (g *Gateway) apply(ctx context.Context, cfg config.Config) error {
	dm, err := transport.NewDownstreamManager(ctx, cfg.Downstream, g.logger, g.transportFactory)
	if err != nil {
		return fmt.Errorf("downstream: %w", err)
	}

	reg := NewRegistry(g.upstream, dm, cfg.Scrub, cfg.Upstream.MCP, g.logger)
	handler, count, err := reg.Build()
	if err != nil {
		dm.Close()
		return fmt.Errorf("registry: %w", err)
	}
	g.logger.Info("location registration complete", "total", count)

	scrub := cfg.Scrub

	g.mu.Lock()
	old := g.dm
	g.dm = dm
	g.cfg = cfg
	g.upstream.SetHandler(handler)
	g.toolDefaults.Store(&scrub)
	g.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// reload re-reads the config file. Invalid configs leave the running
// configuration in place.
func (g *Gateway) reload(ctx context.Context) {
	cfg, err := config.Load(g.cfgPath)
	if err != nil {
		g.logger.Error("config reload failed", "path", g.cfgPath, "err", err)
		return
	}

	running := g.running()
	if cfg.Upstream.HTTP.Addr != running.Upstream.HTTP.Addr {
		g.logger.Warn("listener address change requires a restart",
			"current", running.Upstream.HTTP.Addr,
			"configured", cfg.Upstream.HTTP.Addr,
		)
		cfg.Upstream.HTTP = running.Upstream.HTTP
	}
	if config.Enabled(cfg.Upstream.MCP.Enabled) != config.Enabled(running.Upstream.MCP.Enabled) {
		g.logger.Warn("mcp enable/disable requires a restart")
		cfg.Upstream.MCP = running.Upstream.MCP
	}
	if err := g.apply(ctx, cfg); err != nil {
		g.logger.Error("config reload failed", "path", g.cfgPath, "err", err)
		return
	}
	g.logger.Info("config reloaded", "path", g.cfgPath)
}

// running returns the config currently being served.
func (g *Gateway) running() config.Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

func (g *Gateway) closeDownstream() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dm != nil {
		g.dm.Close()
		g.dm = nil
	}
}
