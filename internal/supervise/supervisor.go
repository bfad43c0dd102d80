// Package supervise manages the lifecycle of the three local units: the
// inference daemon, the gateway process and the containerized worker. Units
// may be managed by the init system, launched directly, or run under a
// container runtime; the supervisor converges them to a known state and
// reports failures instead of guessing.
package supervise

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"infergate/internal/common/fsutil"
)

// UnitName identifies one managed unit.
type UnitName string

const (
	UnitDaemon  UnitName = "daemon"
	UnitGateway UnitName = "gateway"
	UnitWorker  UnitName = "worker"
)

// StartOrder is the dependency order for composed operations: the worker
// depends on the gateway's address being live, so it always goes last.
var StartOrder = []UnitName{UnitDaemon, UnitGateway, UnitWorker}

// Unit describes how one managed unit is detected, started and stopped.
type Unit struct {
	Name     UnitName
	Systemd  string   // init-system unit name; empty when not systemd-managed
	Pattern  string   // process command-line pattern for detection and signals
	StartCmd []string // direct launch command used as the fallback mechanism
	LogPath  string
	Compose  *ComposeRunner // set only for the container worker
}

// State is a unit's observed lifecycle state.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateStopped
	StateIndeterminate
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// UnitStatus is the result of one status read.
type UnitStatus struct {
	Unit  UnitName
	State State
	Pid   int
	// Running/Total describe the worker's service fraction; Total is 0 for
	// plain process units.
	Running int
	Total   int
}

// Outcome is the terminal result of one start/stop invocation.
type Outcome string

const (
	OutcomeStarted        Outcome = "started"
	OutcomeAlreadyRunning Outcome = "already running"
	OutcomeStopped        Outcome = "stopped"
	OutcomeAlreadyStopped Outcome = "already stopped"
)

// Options tune the supervisor's wait windows.
type Options struct {
	SettleWait   time.Duration // wait after start before re-checking
	StopGrace    time.Duration // wait after a termination signal
	RestartDelay time.Duration // pause between stop and start of a restart
}

func (o *Options) applyDefaults() {
	if o.SettleWait == 0 {
		o.SettleWait = 2 * time.Second
	}
	if o.StopGrace == 0 {
		o.StopGrace = 3 * time.Second
	}
	if o.RestartDelay == 0 {
		o.RestartDelay = 2 * time.Second
	}
}

// Supervisor drives the managed units through a ProcessManager.
type Supervisor struct {
	pm    ProcessManager
	units map[UnitName]Unit
	opts  Options
}

// New builds a Supervisor over the given units.
func New(pm ProcessManager, units []Unit, opts Options) *Supervisor {
	opts.applyDefaults()
	m := make(map[UnitName]Unit, len(units))
	for _, u := range units {
		m[u.Name] = u
	}
	return &Supervisor{pm: pm, units: m, opts: opts}
}

// Units returns the names of managed units in dependency order.
func (s *Supervisor) Units() []UnitName {
	out := make([]UnitName, 0, len(s.units))
	for _, n := range StartOrder {
		if _, ok := s.units[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Supervisor) unit(name UnitName) (Unit, error) {
	u, ok := s.units[name]
	if !ok {
		return Unit{}, fmt.Errorf("unknown unit %q", name)
	}
	return u, nil
}

// detectors returns the unit's detection mechanisms, authoritative first.
func (s *Supervisor) detectors(u Unit) []Detector {
	if u.Compose != nil {
		return []Detector{NewComposeDetector(u.Compose)}
	}
	var ds []Detector
	if u.Systemd != "" {
		ds = append(ds, NewSystemdDetector(s.pm, u.Systemd))
	}
	if u.Pattern != "" {
		ds = append(ds, NewPatternDetector(s.pm, u.Pattern))
	}
	return ds
}

// isRunning tries each detector in priority order; the unit is running iff
// any mechanism reports success. An error is returned only when every
// mechanism failed to answer.
func (s *Supervisor) isRunning(ctx context.Context, u Unit) (bool, error) {
	ds := s.detectors(u)
	if len(ds) == 0 {
		return false, fmt.Errorf("unit %s has no detection method", u.Name)
	}
	var firstErr error
	answered := false
	for _, d := range ds {
		ok, err := d.IsRunning(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", d.Name(), err)
			}
			continue
		}
		answered = true
		if ok {
			return true, nil
		}
	}
	if !answered {
		return false, firstErr
	}
	return false, nil
}

// Status is a pure read of one unit's state.
func (s *Supervisor) Status(ctx context.Context, name UnitName) UnitStatus {
	u, err := s.unit(name)
	if err != nil {
		return UnitStatus{Unit: name, State: StateUnknown}
	}
	st := UnitStatus{Unit: name}
	if u.Compose != nil {
		running, total, err := u.Compose.Services(ctx)
		if err != nil {
			st.State = StateIndeterminate
			return st
		}
		st.Running, st.Total = running, total
		if total > 0 && running == total {
			st.State = StateRunning
		} else {
			st.State = StateStopped
		}
		return st
	}
	ok, err := s.isRunning(ctx, u)
	switch {
	case err != nil:
		st.State = StateIndeterminate
	case ok:
		st.State = StateRunning
		if u.Pattern != "" {
			if found, pid, perr := s.pm.IsRunning(ctx, u.Pattern); perr == nil && found {
				st.Pid = pid
			}
		}
	default:
		st.State = StateStopped
	}
	return st
}

// Start brings one unit up. Starting an already-running unit is a no-op.
// The init-system mechanism is preferred; when it is unavailable or fails,
// the unit is launched directly, detached, with output captured to its log.
func (s *Supervisor) Start(ctx context.Context, name UnitName) (Outcome, error) {
	u, err := s.unit(name)
	if err != nil {
		return "", err
	}
	running, err := s.isRunning(ctx, u)
	if err != nil {
		return "", indeterminateError{unit: name, cause: err}
	}
	if running {
		return OutcomeAlreadyRunning, nil
	}

	if err := s.issueStart(ctx, u); err != nil {
		return "", startFailedError{unit: name, detail: err.Error()}
	}

	time.Sleep(s.opts.SettleWait)
	running, err = s.isRunning(ctx, u)
	if err != nil {
		return "", indeterminateError{unit: name, cause: err}
	}
	if !running {
		return "", startFailedError{unit: name, detail: "unit not running after settle window, check " + u.LogPath}
	}
	return OutcomeStarted, nil
}

func (s *Supervisor) issueStart(ctx context.Context, u Unit) error {
	if u.Compose != nil {
		return u.Compose.Up(ctx)
	}
	if u.Systemd != "" {
		if _, err := s.pm.Run(ctx, "systemctl", "start", u.Systemd); err == nil {
			return nil
		}
		// init system unavailable or refused; fall back to a direct launch
	}
	if len(u.StartCmd) == 0 {
		return fmt.Errorf("no start command configured")
	}
	_, err := s.pm.StartDetached(ctx, u.LogPath, u.StartCmd[0], u.StartCmd[1:]...)
	return err
}

// Stop gracefully terminates one unit. force escalates to SIGKILL after the
// grace period; without it a still-running unit is a StopFailed result.
func (s *Supervisor) Stop(ctx context.Context, name UnitName, force bool) (Outcome, error) {
	u, err := s.unit(name)
	if err != nil {
		return "", err
	}
	running, err := s.isRunning(ctx, u)
	if err != nil {
		return "", indeterminateError{unit: name, cause: err}
	}
	if !running {
		return OutcomeAlreadyStopped, nil
	}

	if err := s.issueStop(ctx, u); err != nil {
		return "", stopFailedError{unit: name, detail: err.Error()}
	}

	time.Sleep(s.opts.StopGrace)
	running, err = s.isRunning(ctx, u)
	if err != nil {
		return "", indeterminateError{unit: name, cause: err}
	}
	if running && force && u.Pattern != "" {
		if err := s.pm.Signal(ctx, u.Pattern, syscall.SIGKILL); err != nil {
			return "", stopFailedError{unit: name, detail: err.Error()}
		}
		time.Sleep(s.opts.StopGrace)
		running, err = s.isRunning(ctx, u)
		if err != nil {
			return "", indeterminateError{unit: name, cause: err}
		}
	}
	if running {
		return "", stopFailedError{unit: name, detail: "unit still running after grace period"}
	}
	return OutcomeStopped, nil
}

func (s *Supervisor) issueStop(ctx context.Context, u Unit) error {
	if u.Compose != nil {
		return u.Compose.Stop(ctx)
	}
	// Stop through whichever mechanism currently manages the unit.
	if u.Systemd != "" {
		if active, _ := NewSystemdDetector(s.pm, u.Systemd).IsRunning(ctx); active {
			_, err := s.pm.Run(ctx, "systemctl", "stop", u.Systemd)
			return err
		}
	}
	if u.Pattern == "" {
		return fmt.Errorf("no stop mechanism configured")
	}
	return s.pm.Signal(ctx, u.Pattern, syscall.SIGTERM)
}

// Restart is stop, a fixed settle delay, then start.
func (s *Supervisor) Restart(ctx context.Context, name UnitName, force bool) (Outcome, error) {
	if _, err := s.Stop(ctx, name, force); err != nil {
		return "", err
	}
	time.Sleep(s.opts.RestartDelay)
	return s.Start(ctx, name)
}

// ActionResult reports one unit's outcome from a composed operation.
type ActionResult struct {
	Unit    UnitName
	Outcome Outcome
	Err     error
}

// StartAll starts every unit in dependency order.
func (s *Supervisor) StartAll(ctx context.Context) []ActionResult {
	var out []ActionResult
	for _, name := range s.Units() {
		o, err := s.Start(ctx, name)
		out = append(out, ActionResult{Unit: name, Outcome: o, Err: err})
	}
	return out
}

// StopAll stops every unit, worker first since it depends on the others.
func (s *Supervisor) StopAll(ctx context.Context, force bool) []ActionResult {
	names := s.Units()
	var out []ActionResult
	for i := len(names) - 1; i >= 0; i-- {
		o, err := s.Stop(ctx, names[i], force)
		out = append(out, ActionResult{Unit: names[i], Outcome: o, Err: err})
	}
	return out
}

// RestartAll restarts every unit strictly in dependency order: the daemon
// and gateway complete their stop+start before the worker restart begins.
func (s *Supervisor) RestartAll(ctx context.Context, force bool) []ActionResult {
	var out []ActionResult
	for _, name := range s.Units() {
		o, err := s.Restart(ctx, name, force)
		out = append(out, ActionResult{Unit: name, Outcome: o, Err: err})
	}
	return out
}

// TailLog returns the last n log lines for a unit.
func (s *Supervisor) TailLog(ctx context.Context, name UnitName, n int) (string, error) {
	u, err := s.unit(name)
	if err != nil {
		return "", err
	}
	if u.Compose != nil {
		return u.Compose.Logs(ctx, n)
	}
	lines, err := fsutil.TailLines(u.LogPath, n)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// TruncateLog empties a unit's log file. Container logs are managed by the
// runtime and are left alone.
func (s *Supervisor) TruncateLog(name UnitName) error {
	u, err := s.unit(name)
	if err != nil {
		return err
	}
	if u.Compose != nil {
		return fmt.Errorf("unit %s logs are managed by the container runtime", name)
	}
	if !fsutil.PathExists(u.LogPath) {
		return nil
	}
	return os.Truncate(u.LogPath, 0)
}
