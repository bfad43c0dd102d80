package diag

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"infergate/internal/backend"
	"infergate/internal/supervise"
	"infergate/pkg/types"
)

type mockEngine struct {
	model   string
	pingErr error
	genOut  backend.GenerateResponse
	genErr  error
	models  []types.Model
	listErr error
	pullErr error
	pulled  []string
}

func (m *mockEngine) Ping(ctx context.Context, timeout time.Duration) error { return m.pingErr }

func (m *mockEngine) Generate(ctx context.Context, prompt string) (backend.GenerateResponse, error) {
	return m.genOut, m.genErr
}

func (m *mockEngine) ListModels(ctx context.Context) ([]types.Model, error) {
	return m.models, m.listErr
}

func (m *mockEngine) Pull(ctx context.Context, name string, progress backend.PullProgress) error {
	m.pulled = append(m.pulled, name)
	return m.pullErr
}

func (m *mockEngine) Model() string   { return m.model }
func (m *mockEngine) BaseURL() string { return "http://127.0.0.1:11434" }

type mockUnits struct {
	status   map[supervise.UnitName]supervise.UnitStatus
	started  []supervise.UnitName
	restarts []supervise.UnitName

	statusFunc func(name supervise.UnitName) supervise.UnitStatus
}

func (m *mockUnits) Status(ctx context.Context, name supervise.UnitName) supervise.UnitStatus {
	if m.statusFunc != nil {
		return m.statusFunc(name)
	}
	return m.status[name]
}

func (m *mockUnits) Start(ctx context.Context, name supervise.UnitName) (supervise.Outcome, error) {
	m.started = append(m.started, name)
	return supervise.OutcomeStarted, nil
}

func (m *mockUnits) Restart(ctx context.Context, name supervise.UnitName, force bool) (supervise.Outcome, error) {
	m.restarts = append(m.restarts, name)
	return supervise.OutcomeStarted, nil
}

func healthyUnits() *mockUnits {
	return &mockUnits{status: map[supervise.UnitName]supervise.UnitStatus{
		supervise.UnitDaemon:  {Unit: supervise.UnitDaemon, State: supervise.StateRunning, Pid: 100},
		supervise.UnitGateway: {Unit: supervise.UnitGateway, State: supervise.StateRunning, Pid: 101},
		supervise.UnitWorker:  {Unit: supervise.UnitWorker, State: supervise.StateRunning, Running: 2, Total: 2},
	}}
}

func healthyEngine() *mockEngine {
	return &mockEngine{
		model:  "llama3",
		genOut: backend.GenerateResponse{Response: "alpha beta gamma delta", Done: true},
		models: []types.Model{{Name: "llama3:latest"}},
	}
}

// serveHealth exposes a real /health endpoint and returns its port.
func serveHealth(t *testing.T) int {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

// freePort finds a port with nothing listening on it.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func findCheck(t *testing.T, r Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("report has no %q check: %+v", name, r.Checks)
	return Check{}
}

func TestRunAllGreen(t *testing.T) {
	a := NewAggregator(healthyEngine(), healthyUnits(), serveHealth(t))
	a.ProbeTimeout = 2 * time.Second

	r := a.Run(context.Background(), false)
	if len(r.Checks) != 8 {
		t.Fatalf("got %d checks, want 8", len(r.Checks))
	}
	if !r.OK() {
		t.Fatalf("expected all green, failed: %+v", r.Failed())
	}
	if c := findCheck(t, r, "worker"); !strings.Contains(c.Detail, "2/2") {
		t.Fatalf("worker detail = %q", c.Detail)
	}
}

func TestOneFailureStillYieldsCompleteReport(t *testing.T) {
	engine := healthyEngine()
	engine.models = nil
	a := NewAggregator(engine, healthyUnits(), serveHealth(t))
	a.ProbeTimeout = 2 * time.Second

	r := a.Run(context.Background(), false)
	if len(r.Checks) != 8 {
		t.Fatalf("got %d checks, want 8", len(r.Checks))
	}
	failed := r.Failed()
	if len(failed) != 1 || failed[0].Name != "model" {
		t.Fatalf("failed = %+v", failed)
	}
	if failed[0].Remediation == "" {
		t.Fatal("failed check must carry a remediation hint")
	}
}

func TestFixableMatchesRemediationSupport(t *testing.T) {
	a := NewAggregator(healthyEngine(), healthyUnits(), serveHealth(t))
	a.ProbeTimeout = 2 * time.Second
	r := a.Run(context.Background(), false)

	// a missing model can be pulled automatically, a dead backend cannot
	if c := findCheck(t, r, "model"); !c.Fixable() {
		t.Fatalf("model check should be fixable: %+v", c)
	}
	if c := findCheck(t, r, "backend-api"); c.Fixable() {
		t.Fatalf("backend-api check has no automatic fix: %+v", c)
	}
	if c := findCheck(t, r, "inference"); c.Fixable() {
		t.Fatalf("inference check has no automatic fix: %+v", c)
	}
}

func TestProbePanicIsContained(t *testing.T) {
	units := healthyUnits()
	base := units.status
	units.statusFunc = func(name supervise.UnitName) supervise.UnitStatus {
		if name == supervise.UnitWorker {
			panic("worker status exploded")
		}
		return base[name]
	}
	a := NewAggregator(healthyEngine(), units, serveHealth(t))
	a.ProbeTimeout = 2 * time.Second

	r := a.Run(context.Background(), false)
	if len(r.Checks) != 8 {
		t.Fatalf("got %d checks, want 8", len(r.Checks))
	}
	c := findCheck(t, r, "worker")
	if c.OK || !strings.Contains(c.Detail, "panicked") {
		t.Fatalf("panicking probe not contained: %+v", c)
	}
	// everything else still ran
	if got := len(r.Failed()); got != 1 {
		t.Fatalf("%d failures, want 1: %+v", got, r.Failed())
	}
}

func TestPortDriftDetected(t *testing.T) {
	a := NewAggregator(healthyEngine(), healthyUnits(), freePort(t))
	a.ProbeTimeout = 300 * time.Millisecond

	r := a.Run(context.Background(), false)
	c := findCheck(t, r, "port-drift")
	if c.OK {
		t.Fatal("dead persisted port with a live gateway must report drift")
	}
	if !strings.Contains(c.Detail, "config drift") {
		t.Fatalf("detail = %q", c.Detail)
	}
}

func TestPortDriftNotReportedWhenGatewayDown(t *testing.T) {
	units := healthyUnits()
	units.status[supervise.UnitGateway] = supervise.UnitStatus{
		Unit: supervise.UnitGateway, State: supervise.StateStopped,
	}
	a := NewAggregator(healthyEngine(), units, freePort(t))
	a.ProbeTimeout = 300 * time.Millisecond

	r := a.Run(context.Background(), false)
	if c := findCheck(t, r, "port-drift"); !c.OK {
		t.Fatalf("a stopped gateway is not drift: %+v", c)
	}
}

func TestRunWithBench(t *testing.T) {
	a := NewAggregator(healthyEngine(), healthyUnits(), serveHealth(t))
	a.ProbeTimeout = 2 * time.Second

	r := a.Run(context.Background(), true)
	if r.BenchErr != nil {
		t.Fatalf("bench err: %v", r.BenchErr)
	}
	if r.Bench == nil || r.Bench.Words != 4 {
		t.Fatalf("bench = %+v", r.Bench)
	}
	if r.Bench.WordsPerSec <= 0 {
		t.Fatalf("words/sec = %f", r.Bench.WordsPerSec)
	}
}

func TestBenchFailure(t *testing.T) {
	engine := healthyEngine()
	engine.genErr = context.DeadlineExceeded
	_, err := RunBench(context.Background(), engine)
	if !IsBenchmarkFailed(err) {
		t.Fatalf("expected benchmark failure, got %v", err)
	}
}

func TestFixIsConfirmGated(t *testing.T) {
	engine := healthyEngine()
	engine.models = nil // model check fails, fix is a pull
	units := healthyUnits()
	a := NewAggregator(engine, units, serveHealth(t))
	a.ProbeTimeout = 2 * time.Second
	r := a.Run(context.Background(), false)

	// declined: nothing happens
	if got := a.Fix(context.Background(), r, func(Check) bool { return false }); len(got) != 0 {
		t.Fatalf("declined fix still ran: %+v", got)
	}
	if len(engine.pulled) != 0 {
		t.Fatalf("pull ran without confirmation: %v", engine.pulled)
	}

	// confirmed: the model is pulled
	results := a.Fix(context.Background(), r, func(Check) bool { return true })
	if len(results) != 1 || results[0].Name != "model" || results[0].Err != nil {
		t.Fatalf("fix results = %+v", results)
	}
	if len(engine.pulled) != 1 || engine.pulled[0] != "llama3" {
		t.Fatalf("pulled = %v", engine.pulled)
	}
}
