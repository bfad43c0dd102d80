// Package diag runs the health test battery: unit liveness, backend
// reachability, model presence, gateway round-trip, port drift and a host
// resource snapshot. Every probe always reports; one failing probe never
// hides the others.
package diag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"infergate/internal/backend"
	"infergate/internal/ports"
	"infergate/internal/supervise"
	"infergate/pkg/types"
)

// Engine is the backend surface the probes exercise. *backend.Client
// satisfies it.
type Engine interface {
	Ping(ctx context.Context, timeout time.Duration) error
	Generate(ctx context.Context, prompt string) (backend.GenerateResponse, error)
	ListModels(ctx context.Context) ([]types.Model, error)
	Pull(ctx context.Context, name string, progress backend.PullProgress) error
	Model() string
	BaseURL() string
}

// UnitManager is the supervisor surface the probes and fixes use.
type UnitManager interface {
	Status(ctx context.Context, name supervise.UnitName) supervise.UnitStatus
	Start(ctx context.Context, name supervise.UnitName) (supervise.Outcome, error)
	Restart(ctx context.Context, name supervise.UnitName, force bool) (supervise.Outcome, error)
}

// Check is one probe's outcome.
type Check struct {
	Name        string
	OK          bool
	Latency     time.Duration
	Detail      string
	Remediation string

	fix func(ctx context.Context) error
}

// Fixable reports whether the check carries an automatic remediation.
func (c Check) Fixable() bool { return c.fix != nil }

// Report is one complete diagnostic run.
type Report struct {
	Checks    []Check
	Resources ResourceSnapshot
	Bench     *BenchResult
	BenchErr  error
}

// OK reports whether every check passed and, when run, the benchmark
// completed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return r.BenchErr == nil
}

// Failed returns the failing checks in report order.
func (r Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Aggregator wires the probes to their dependencies.
type Aggregator struct {
	engine      Engine
	units       UnitManager
	gatewayPort int

	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration
}

// NewAggregator builds the standard battery. gatewayPort is the persisted
// port the gateway is expected to answer on.
func NewAggregator(engine Engine, units UnitManager, gatewayPort int) *Aggregator {
	return &Aggregator{
		engine:       engine,
		units:        units,
		gatewayPort:  gatewayPort,
		ProbeTimeout: 5 * time.Second,
	}
}

type probe struct {
	name        string
	remediation string
	fix         func(ctx context.Context) error
	run         func(ctx context.Context) (detail string, err error)
}

// Run executes every probe concurrently and returns a complete report.
// withBench additionally times one generation round-trip, sequentially,
// after the probes finish so it does not contend with them.
func (a *Aggregator) Run(ctx context.Context, withBench bool) Report {
	probes := a.probes()
	checks := make([]Check, len(probes))

	var wg sync.WaitGroup
	var rs ResourceSnapshot
	wg.Add(1)
	go func() {
		defer wg.Done()
		rs = Snapshot(ctx)
	}()
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p probe) {
			defer wg.Done()
			checks[i] = a.runProbe(ctx, p)
		}(i, p)
	}
	wg.Wait()

	report := Report{Checks: checks, Resources: rs}
	if withBench {
		benchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		res, err := RunBench(benchCtx, a.engine)
		if err != nil {
			report.BenchErr = err
		} else {
			report.Bench = &res
		}
	}
	return report
}

// runProbe isolates one probe: a panic or error becomes a failed check and
// never takes the run down.
func (a *Aggregator) runProbe(ctx context.Context, p probe) (c Check) {
	c = Check{Name: p.name, Remediation: p.remediation, fix: p.fix}
	start := time.Now()
	defer func() {
		c.Latency = time.Since(start)
		if r := recover(); r != nil {
			c.OK = false
			c.Detail = fmt.Sprintf("probe panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, a.ProbeTimeout)
	defer cancel()
	detail, err := p.run(ctx)
	c.Detail = detail
	if err != nil {
		c.OK = false
		if detail == "" {
			c.Detail = err.Error()
		}
		return c
	}
	c.OK = true
	return c
}

func (a *Aggregator) probes() []probe {
	return []probe{
		a.unitProbe(supervise.UnitDaemon, "infergatectl start daemon"),
		a.unitProbe(supervise.UnitGateway, "infergatectl start gateway"),
		a.unitProbe(supervise.UnitWorker, "infergatectl start worker"),
		{
			name:        "backend-api",
			remediation: "infergatectl start daemon",
			run: func(ctx context.Context) (string, error) {
				if err := a.engine.Ping(ctx, a.ProbeTimeout); err != nil {
					return "", err
				}
				return a.engine.BaseURL() + " reachable", nil
			},
		},
		{
			name:        "model",
			remediation: "infergatectl pull " + a.engine.Model(),
			fix: func(ctx context.Context) error {
				return a.engine.Pull(ctx, a.engine.Model(), nil)
			},
			run: func(ctx context.Context) (string, error) {
				models, err := a.engine.ListModels(ctx)
				if err != nil {
					return "", err
				}
				want := a.engine.Model()
				for _, m := range models {
					if m.Name == want || m.Name == want+":latest" {
						return m.Name + " present", nil
					}
				}
				return "", fmt.Errorf("model %q not present on backend", want)
			},
		},
		{
			name:        "inference",
			remediation: "infergatectl restart daemon",
			run: func(ctx context.Context) (string, error) {
				// a real end-to-end generation, with a generous budget since
				// cold model loads dwarf the other probes
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()
				resp, err := a.engine.Generate(ctx, "Reply with the single word: ready")
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("generated %d bytes", len(resp.Response)), nil
			},
		},
		{
			name:        "gateway-http",
			remediation: "infergatectl restart gateway",
			fix: func(ctx context.Context) error {
				_, err := a.units.Restart(ctx, supervise.UnitGateway, false)
				return err
			},
			run: func(ctx context.Context) (string, error) {
				url := a.healthURL()
				if err := ports.WaitHTTP(url, 200, a.ProbeTimeout); err != nil {
					return "", err
				}
				return url + " healthy", nil
			},
		},
		{
			name:        "port-drift",
			remediation: "infergatectl restart gateway, or set gateway_port to the live port",
			fix: func(ctx context.Context) error {
				_, err := a.units.Restart(ctx, supervise.UnitGateway, false)
				return err
			},
			run: func(ctx context.Context) (string, error) {
				if !ports.IsBusy(a.gatewayPort) {
					st := a.units.Status(ctx, supervise.UnitGateway)
					if st.State == supervise.StateRunning {
						return "", driftError{
							persisted: a.gatewayPort,
							detail:    "gateway process is up but nothing answers on the persisted port",
						}
					}
					return fmt.Sprintf("no drift (gateway not running, port %d free)", a.gatewayPort), nil
				}
				return fmt.Sprintf("port %d matches persisted config", a.gatewayPort), nil
			},
		},
	}
}

func (a *Aggregator) unitProbe(name supervise.UnitName, remediation string) probe {
	return probe{
		name:        string(name),
		remediation: remediation,
		fix: func(ctx context.Context) error {
			_, err := a.units.Start(ctx, name)
			return err
		},
		run: func(ctx context.Context) (string, error) {
			st := a.units.Status(ctx, name)
			switch st.State {
			case supervise.StateRunning:
				if st.Total > 0 {
					return fmt.Sprintf("%d/%d services running", st.Running, st.Total), nil
				}
				if st.Pid > 0 {
					return fmt.Sprintf("running (pid %d)", st.Pid), nil
				}
				return "running", nil
			case supervise.StateIndeterminate:
				return "", fmt.Errorf("state of %s is indeterminate", name)
			default:
				if st.Total > 0 {
					return "", fmt.Errorf("%d/%d services running", st.Running, st.Total)
				}
				return "", fmt.Errorf("%s is not running", name)
			}
		},
	}
}

func (a *Aggregator) healthURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/health", a.gatewayPort)
}

// FixResult is the outcome of one applied remediation.
type FixResult struct {
	Name string
	Err  error
}

// Fix applies the automatic remediation for each failed, fixable check.
// confirm is consulted per check before anything runs; remediations are
// never applied unprompted.
func (a *Aggregator) Fix(ctx context.Context, report Report, confirm func(Check) bool) []FixResult {
	var out []FixResult
	for _, c := range report.Failed() {
		if c.fix == nil {
			continue
		}
		if confirm == nil || !confirm(c) {
			continue
		}
		out = append(out, FixResult{Name: c.Name, Err: c.fix(ctx)})
	}
	return out
}
