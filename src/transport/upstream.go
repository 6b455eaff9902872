package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const shutdownTimeout = 5 * time.Second

// Upstream is the client-facing HTTP listener. The handler it serves can
// be swapped while running; the MCP server is long-lived and is mounted
// by whoever builds the handler.
type Upstream struct {
	Server  *mcp.Server
	cfg     config.UpstreamConfig
	logger  *slog.Logger
	handler atomic.Pointer[http.Handler]
}

// NewUpstream creates an upstream listener. Call SetHandler before Run.
func NewUpstream(cfg config.UpstreamConfig, logger *slog.Logger) *Upstream {
	srv := mcp.NewServer(
		&mcp.Implementation{
			Name:    "easy-html-gateway",
			Version: Version,
		},
		&mcp.ServerOptions{Logger: logger},
	)
	return &Upstream{
		Server: srv,
		cfg:    cfg,
		logger: logger.With("area", "upstream"),
	}
}

// SetHandler atomically replaces the handler serving client requests.
func (u *Upstream) SetHandler(h http.Handler) {
	u.handler.Store(&h)
}

// MCPHandler serves u.Server over the streamable HTTP transport.
func (u *Upstream) MCPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return u.Server },
		&mcp.StreamableHTTPOptions{Logger: u.logger},
	)
}

func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := u.handler.Load()
	if h == nil {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return
	}
	(*h).ServeHTTP(w, r)
}

// Run listens on the configured address and blocks until ctx is
// cancelled or the server fails.
func (u *Upstream) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", u.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", u.cfg.HTTP.Addr, err)
	}
	return u.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (u *Upstream) Serve(ctx context.Context, ln net.Listener) error {
	u.logger.Info("starting HTTP listener", "addr", ln.Addr())

	srv := &http.Server{Handler: u}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		u.logger.Info("shutting down HTTP listener")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
