// Package transport manages the client-facing listener (upstream) and
// the origin servers requests are proxied to (downstream).
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/config"
)

// Downstream is one origin server together with the config that created it.
type Downstream struct {
	Name   string
	Config config.DownstreamConfig
	Target *url.URL

	transport http.RoundTripper
	logger    *slog.Logger
	healthy   atomic.Bool
}

// TransportFactory creates the RoundTripper used to reach a downstream.
// Exists to allow injection of test transports.
type TransportFactory func(config.DownstreamConfig) (http.RoundTripper, error)

// Healthy reports the result of the most recent health probe.
func (d *Downstream) Healthy() bool { return d.healthy.Load() }

// NewProxy returns a reverse proxy to the origin. Request paths are
// forwarded unchanged. modify, if non-nil, sees every origin response
// before it is copied to the client.
func (d *Downstream) NewProxy(modify func(*http.Response) error) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(d.Target)
			pr.SetXForwarded()
		},
		Transport:      d.transport,
		ModifyResponse: modify,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d.logger.Error("proxy error", "server", d.Name, "path", r.URL.Path, "err", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// DownstreamManager owns the configured origins and probes them
// periodically.
type DownstreamManager struct {
	mu               sync.RWMutex
	conns            map[string]*Downstream
	logger           *slog.Logger
	transportFactory TransportFactory

	// cancelHealthCheck stops the background health check goroutine.
	cancelHealthCheck context.CancelFunc
}

// NewDownstreamManager creates a manager for all configured origins and
// probes each once. Origins that fail the probe are logged but do not
// prevent startup; they are retried by health checks.
//
// If transportFactory is nil, the default factory is used.
func NewDownstreamManager(ctx context.Context, downstream []config.DownstreamConfig, logger *slog.Logger, transportFactory TransportFactory) (*DownstreamManager, error) {
	if transportFactory == nil {
		transportFactory = newTransport
	}
	dm := &DownstreamManager{
		conns:            make(map[string]*Downstream, len(downstream)),
		logger:           logger.With("area", "downstream"),
		transportFactory: transportFactory,
	}

	for _, ds := range downstream {
		conn, err := dm.build(ds)
		if err != nil {
			return nil, err
		}
		dm.conns[ds.Name] = conn
		if err := dm.probe(ctx, conn); err != nil {
			dm.logger.Warn("origin unreachable", "server", ds.Name, "url", ds.URL, "err", err)
			continue
		}
		dm.logger.Info("origin reachable", "server", ds.Name, "url", ds.URL)
	}

	hctx, cancel := context.WithCancel(ctx)
	dm.cancelHealthCheck = cancel
	go dm.healthCheckLoop(hctx)

	return dm, nil
}

// Downstream returns the named origin, or nil if it is not configured.
func (dm *DownstreamManager) Downstream(name string) *Downstream {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.conns[name]
}

// Conns returns a snapshot of all origins.
func (dm *DownstreamManager) Conns() map[string]*Downstream {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]*Downstream, len(dm.conns))
	for k, v := range dm.conns {
		out[k] = v
	}
	return out
}

// Close stops health checks and releases idle origin connections.
func (dm *DownstreamManager) Close() {
	if dm.cancelHealthCheck != nil {
		dm.cancelHealthCheck()
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, conn := range dm.conns {
		if t, ok := conn.transport.(interface{ CloseIdleConnections() }); ok {
			t.CloseIdleConnections()
		}
	}
	dm.conns = make(map[string]*Downstream)
}

func (dm *DownstreamManager) build(ds config.DownstreamConfig) (*Downstream, error) {
	target, err := url.Parse(ds.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing url for %s: %w", ds.Name, err)
	}

	rt, err := dm.transportFactory(ds)
	if err != nil {
		return nil, fmt.Errorf("creating transport for %s: %w", ds.Name, err)
	}

	return &Downstream{
		Name:      ds.Name,
		Config:    ds,
		Target:    target,
		transport: rt,
		logger:    dm.logger,
	}, nil
}

func newTransport(_ config.DownstreamConfig) (http.RoundTripper, error) {
	return http.DefaultTransport.(*http.Transport).Clone(), nil
}

const (
	healthCheckInterval = 30 * time.Second
	probeTimeout        = 5 * time.Second
)

// probe sends HEAD to the origin and records the outcome. Any response
// below 500 counts as healthy.
func (dm *DownstreamManager) probe(ctx context.Context, conn *Downstream) error {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := func() error {
		req, err := http.NewRequestWithContext(pctx, http.MethodHead, conn.Target.String(), nil)
		if err != nil {
			return err
		}
		resp, err := conn.transport.RoundTrip(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}()

	conn.healthy.Store(err == nil)
	return err
}

func (dm *DownstreamManager) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.checkAll(ctx)
		}
	}
}

func (dm *DownstreamManager) checkAll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	for name, conn := range dm.Conns() {
		wasHealthy := conn.Healthy()
		err := dm.probe(ctx, conn)
		switch {
		case err != nil && wasHealthy:
			dm.logger.Warn("health check failed", "server", name, "err", err)
		case err == nil && !wasHealthy:
			dm.logger.Info("origin recovered", "server", name)
		}
	}
}
