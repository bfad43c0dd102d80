package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"infergate/internal/backend"
	"infergate/pkg/types"
)

type mockEngine struct {
	mu       sync.Mutex
	genOut   backend.GenerateResponse
	genErr   error
	pingErr  error
	genDelay time.Duration
	calls    int
}

func (m *mockEngine) Generate(ctx context.Context, prompt string) (backend.GenerateResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.genDelay > 0 {
		select {
		case <-time.After(m.genDelay):
		case <-ctx.Done():
			return backend.GenerateResponse{}, ctx.Err()
		}
	}
	return m.genOut, m.genErr
}

func (m *mockEngine) Ping(ctx context.Context, timeout time.Duration) error { return m.pingErr }

func newHandler(eng Engine) http.Handler { return New(eng, "bound-model").Handler() }

func TestTranslate_RoundTrip(t *testing.T) {
	eng := &mockEngine{genOut: backend.GenerateResponse{Response: "hello", CreatedAt: "t", Done: true}}
	h := newHandler(eng)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"hi","extra":"ignored"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("ACAO=%q", got)
	}
	var resp types.TranslateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Response != "hello" || resp.Model != "bound-model" || resp.CreatedAt != "t" || !resp.Done {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTranslate_BackendStatusNamedInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine broke", http.StatusInternalServerError)
	}))
	defer srv.Close()
	eng := backend.New(srv.URL, "bound-model", time.Second)
	h := newHandler(eng)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"hi"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(resp.Error, "500") {
		t.Fatalf("backend status not named: %q", resp.Error)
	}
}

func TestTranslate_TransportErrorIs500NotCrash(t *testing.T) {
	eng := backend.New("http://127.0.0.1:1", "bound-model", 200*time.Millisecond)
	h := newHandler(eng)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"hi"}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status=%d", w.Code)
		}
		var resp types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json: %v", err)
		}
		if resp.Code != 500 {
			t.Fatalf("code=%d", resp.Code)
		}
	}
}

func TestTranslate_BadRequests(t *testing.T) {
	h := newHandler(&mockEngine{})
	for _, body := range []string{"{not json", `{"prompt":"  "}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body=%q status=%d", body, w.Code)
		}
	}
}

func TestHealth_MirrorsBackendProbe(t *testing.T) {
	cases := []struct {
		name    string
		pingErr error
		want    int
		status  string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"unreachable", context.DeadlineExceeded, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tc := range cases {
		h := newHandler(&mockEngine{pingErr: tc.pingErr})
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: status=%d", tc.name, w.Code)
		}
		var resp types.HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: json: %v", tc.name, err)
		}
		if resp.Status != tc.status || resp.Model != "bound-model" {
			t.Fatalf("%s: resp=%+v", tc.name, resp)
		}
	}
}

func TestHealth_NeverHealthyOnBackend4xx5xx(t *testing.T) {
	for _, code := range []int{400, 404, 500, 503} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		eng := backend.New(srv.URL, "bound-model", time.Second)
		h := newHandler(eng)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		srv.Close()
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("backend %d: gateway status=%d", code, w.Code)
		}
	}
}

func TestOptions_AnyPathGetsCORSHeaders(t *testing.T) {
	h := newHandler(&mockEngine{})
	for _, path := range []string{"/", "/health", "/definitely/unknown"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", path, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Fatalf("%s: body=%q", path, w.Body.String())
		}
		hd := w.Header()
		if hd.Get("Access-Control-Allow-Origin") != "*" ||
			!strings.Contains(hd.Get("Access-Control-Allow-Methods"), "POST") ||
			!strings.Contains(hd.Get("Access-Control-Allow-Headers"), "Content-Type") {
			t.Fatalf("%s: headers=%v", path, hd)
		}
	}
}

func TestUnknownPathsAre404(t *testing.T) {
	h := newHandler(&mockEngine{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s %s: status=%d", tc.method, tc.path, w.Code)
		}
	}
}

func TestConcurrentRequests_SlowForwardDoesNotBlockHealth(t *testing.T) {
	eng := &mockEngine{genDelay: 2 * time.Second, genOut: backend.GenerateResponse{Response: "x", Done: true}}
	h := newHandler(eng)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"slow"}`))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}()

	deadline := time.Now().Add(time.Second)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if time.Now().After(deadline) {
		t.Fatalf("health blocked behind slow forward")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
	<-slowDone
}

func TestMetricsEndpointServes(t *testing.T) {
	h := newHandler(&mockEngine{})
	// touch a route first so request counters have at least one sample
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "infergate_http_requests_total") {
		t.Fatalf("metrics body missing counter")
	}
}
