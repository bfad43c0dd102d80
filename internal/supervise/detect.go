package supervise

import "context"

// Detector answers "is this unit running" through one external inspection
// mechanism. A unit carries a primary and a fallback detector tried in that
// fixed order; the unit is running iff either reports success.
type Detector interface {
	Name() string
	IsRunning(ctx context.Context) (bool, error)
}

// SystemdDetector asks the init system whether a unit is active.
type SystemdDetector struct {
	pm   ProcessManager
	unit string
}

func NewSystemdDetector(pm ProcessManager, unit string) *SystemdDetector {
	return &SystemdDetector{pm: pm, unit: unit}
}

func (d *SystemdDetector) Name() string { return "systemd:" + d.unit }

func (d *SystemdDetector) IsRunning(ctx context.Context) (bool, error) {
	// is-active exits non-zero for inactive units and for hosts without
	// systemd alike; both mean "this mechanism says not running".
	if _, err := d.pm.Run(ctx, "systemctl", "is-active", "--quiet", d.unit); err != nil {
		return false, nil
	}
	return true, nil
}

// PatternDetector matches process command lines.
type PatternDetector struct {
	pm      ProcessManager
	pattern string
}

func NewPatternDetector(pm ProcessManager, pattern string) *PatternDetector {
	return &PatternDetector{pm: pm, pattern: pattern}
}

func (d *PatternDetector) Name() string { return "pattern:" + d.pattern }

func (d *PatternDetector) IsRunning(ctx context.Context) (bool, error) {
	ok, _, err := d.pm.IsRunning(ctx, d.pattern)
	return ok, err
}

// ComposeDetector reports running only when every defined service of the
// compose project is up. A project with zero defined services is treated as
// not running, never as vacuously healthy.
type ComposeDetector struct {
	runner *ComposeRunner
}

func NewComposeDetector(runner *ComposeRunner) *ComposeDetector {
	return &ComposeDetector{runner: runner}
}

func (d *ComposeDetector) Name() string { return "compose" }

func (d *ComposeDetector) IsRunning(ctx context.Context) (bool, error) {
	running, total, err := d.runner.Services(ctx)
	if err != nil {
		return false, err
	}
	return total > 0 && running == total, nil
}
