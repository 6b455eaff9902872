// Package gateway wires the upstream listener to downstream origins,
// filtering HTML responses through the newline scrubber per location.
package gateway

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/config"
	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/scrubber"
	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/transport"
)

// Registry maps configured locations onto downstream origins and builds
// the handler the upstream listener serves.
type Registry struct {
	upstream   *transport.Upstream
	downstream *transport.DownstreamManager
	globalCfg  config.ScrubConfig
	mcpCfg     config.MCPConfig
	logger     *slog.Logger
}

// NewRegistry creates a registry wired to the given upstream/downstream pair.
func NewRegistry(
	upstream *transport.Upstream,
	downstream *transport.DownstreamManager,
	globalCfg config.ScrubConfig,
	mcpCfg config.MCPConfig,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		upstream:   upstream,
		downstream: downstream,
		globalCfg:  globalCfg,
		mcpCfg:     mcpCfg,
		logger:     logger.With("area", "registry"),
	}
}

// Build returns a mux routing each location path to its origin, plus
// the MCP endpoint when enabled. Returns the number of locations routed.
func (r *Registry) Build() (http.Handler, int, error) {
	mux := http.NewServeMux()
	count := 0

	for name, conn := range r.downstream.Conns() {
		merged := config.Merge(&r.globalCfg, conn.Config.Scrub)

		var modify func(*http.Response) error
		if config.Enabled(merged.NoNewlines) {
			modify = scrubResponse(scrubber.Options{PrefixTags: config.Enabled(merged.PrefixTags)})
		}

		h := locationHandler(conn, modify)
		if err := handle(mux, conn.Config.Path, logRequests(name, h, r.logger)); err != nil {
			return nil, count, fmt.Errorf("registering location %s: %w", name, err)
		}

		r.logger.Info("registered location",
			"server", name,
			"path", conn.Config.Path,
			"noNewlines", config.Enabled(merged.NoNewlines),
		)
		count++
	}

	if config.Enabled(r.mcpCfg.Enabled) {
		if err := handle(mux, r.mcpCfg.Path, r.upstream.MCPHandler()); err != nil {
			return nil, count, fmt.Errorf("registering mcp endpoint: %w", err)
		}
		r.logger.Info("registered mcp endpoint", "path", r.mcpCfg.Path)
	}

	if count == 0 {
		return nil, 0, fmt.Errorf("no locations configured")
	}
	return mux, count, nil
}

// locationHandler proxies to conn, refusing requests while the origin is
// failing its health checks.
func locationHandler(conn *transport.Downstream, modify func(*http.Response) error) http.Handler {
	proxy := conn.NewProxy(modify)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !conn.Healthy() {
			http.Error(w, fmt.Sprintf("downstream %s not available", conn.Name), http.StatusServiceUnavailable)
			return
		}
		proxy.ServeHTTP(w, req)
	})
}

// handle registers h on mux, turning the mux's pattern panics into errors.
func handle(mux *http.ServeMux, pattern string, h http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pattern %q: %v", pattern, rec)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}
