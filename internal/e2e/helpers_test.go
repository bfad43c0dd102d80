package e2e

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"infergate/internal/backend"
	"infergate/internal/gateway"
	"infergate/internal/ports"
)

// testPortRange derives a negotiation range from a kernel-assigned free
// port, so parallel runs on a shared host never contend for fixed ports.
func testPortRange(t *testing.T) (int, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	low := l.Addr().(*net.TCPAddr).Port
	l.Close()
	high := low + 100
	if high > 65535 {
		high = 65535
	}
	return low, high
}

// mockDaemon imitates the inference daemon's native API: /api/generate and
// /api/tags, with a configurable per-request delay and failure status.
type mockDaemon struct {
	srv *httptest.Server

	delay     time.Duration
	failCode  int32 // non-zero: /api/generate answers this status
	generated int32
}

func newMockDaemon(t *testing.T) *mockDaemon {
	t.Helper()
	m := &mockDaemon{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		if m.delay > 0 {
			time.Sleep(m.delay)
		}
		if code := atomic.LoadInt32(&m.failCode); code != 0 {
			http.Error(w, "engine exploded", int(code))
			return
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream {
			http.Error(w, "streaming not expected", http.StatusBadRequest)
			return
		}
		atomic.AddInt32(&m.generated, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"response":   "echo: " + req.Prompt,
			"created_at": "2025-01-02T03:04:05Z",
			"done":       true,
		})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{{"name": "llama3:latest"}},
		})
	})
	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

// startGateway brings up a real gateway on a negotiated port and returns its
// base URL plus the bound port.
func startGateway(t *testing.T, backendURL string, preferred, low, high int) (string, int) {
	t.Helper()
	engine := backend.New(backendURL, "llama3", 2*time.Second)
	srv := gateway.New(engine, "llama3")

	ln, bound, err := ports.ListenWithRetry(preferred, low, high, 3)
	if err != nil {
		t.Fatalf("negotiating a port: %v", err)
	}
	httpSrv := &http.Server{Handler: srv.Handler()}
	go httpSrv.Serve(ln)
	t.Cleanup(func() { httpSrv.Close() })

	base := fmt.Sprintf("http://127.0.0.1:%d", bound)
	if err := ports.WaitHTTP(base+"/health", http.StatusOK, 5*time.Second); err != nil {
		t.Fatalf("gateway never came up: %v", err)
	}
	return base, bound
}
