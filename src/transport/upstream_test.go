package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Easy-Infra-Ltd/easy-html-gateway/src/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestNewUpstream_createsServer(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{}, testLogger())
	if u.Server == nil {
		t.Fatal("expected non-nil server")
	}
}

func TestUpstream_notReady(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{}, testLogger())
	rec := httptest.NewRecorder()
	u.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestUpstream_setHandlerSwaps(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{}, testLogger())
	for _, body := range []string{"first", "second"} {
		u.SetHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		}))
		rec := httptest.NewRecorder()
		u.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Body.String() != body {
			t.Errorf("body = %q, want %q", rec.Body.String(), body)
		}
	}
}

func TestUpstream_serveAndShutdown(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{}, testLogger())
	u.SetHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hello")
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestUpstream_runListenError(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{HTTP: config.HTTPConfig{Addr: "256.0.0.1:bad"}}, testLogger())
	if err := u.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestUpstream_toolRegistration(t *testing.T) {
	u := NewUpstream(config.UpstreamConfig{}, testLogger())

	u.Server.AddTool(&mcp.Tool{
		Name:        "test_tool",
		Description: "a test tool",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "response"}},
		}, nil
	})

	srvTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = u.Server.Run(ctx, srvTransport)
	}()

	client := mcp.NewClient(
		&mcp.Implementation{Name: "test-client", Version: "0.0.1"},
		nil,
	)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "test_tool"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected *TextContent, got %T", result.Content[0])
	}
	if tc.Text != "response" {
		t.Errorf("expected text 'response', got %q", tc.Text)
	}
}
