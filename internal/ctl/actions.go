package ctl

import (
	"context"
	"fmt"
	"time"

	"infergate/internal/config"
	"infergate/internal/diag"
	"infergate/internal/ports"
	"infergate/internal/supervise"
)

// Indirection layer to allow stubbing in tests
var (
	fnStart   = actStart
	fnStop    = actStop
	fnRestart = actRestart
	fnStatus  = actStatus
	fnLogs    = actLogs
	fnTest    = actTest
	fnModels  = actModels
	fnPull    = actPull
	fnPorts   = actPorts
)

func parseUnit(s string) (supervise.UnitName, error) {
	switch s {
	case "daemon":
		return supervise.UnitDaemon, nil
	case "gateway":
		return supervise.UnitGateway, nil
	case "worker":
		return supervise.UnitWorker, nil
	default:
		return "", fmt.Errorf("unknown unit %q (want daemon|gateway|worker)", s)
	}
}

func actStart(ctx context.Context, a *App, unitArg string) error {
	if unitArg == "" {
		return reportResults(a, a.sup.StartAll(ctx))
	}
	name, err := parseUnit(unitArg)
	if err != nil {
		return err
	}
	out, err := a.sup.Start(ctx, name)
	if err != nil {
		return err
	}
	info("%s: %s", name, out)
	return nil
}

func actStop(ctx context.Context, a *App, unitArg string, force bool) error {
	if unitArg == "" {
		return reportResults(a, a.sup.StopAll(ctx, force))
	}
	name, err := parseUnit(unitArg)
	if err != nil {
		return err
	}
	out, err := a.sup.Stop(ctx, name, force)
	if err != nil {
		return err
	}
	info("%s: %s", name, out)
	return nil
}

func actRestart(ctx context.Context, a *App, unitArg string, force bool) error {
	if unitArg == "" {
		return reportResults(a, a.sup.RestartAll(ctx, force))
	}
	name, err := parseUnit(unitArg)
	if err != nil {
		return err
	}
	out, err := a.sup.Restart(ctx, name, force)
	if err != nil {
		return err
	}
	info("%s: %s", name, out)
	return nil
}

func reportResults(a *App, results []supervise.ActionResult) error {
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			errl("%s: %v", r.Unit, r.Err)
			continue
		}
		info("%s: %s", r.Unit, r.Outcome)
	}
	if failed > 0 {
		return fmt.Errorf("%d unit(s) failed", failed)
	}
	return nil
}

func actStatus(ctx context.Context, a *App) error {
	fmt.Fprintf(a.out, "model:        %s\n", a.engine.Model())
	fmt.Fprintf(a.out, "backend:      %s\n", a.engine.BaseURL())
	fmt.Fprintf(a.out, "gateway port: %d\n", a.gatewayPort)
	for _, name := range a.sup.Units() {
		st := a.sup.Status(ctx, name)
		line := fmt.Sprintf("%-8s %s", name, st.State)
		if st.Pid > 0 {
			line += fmt.Sprintf(" (pid %d)", st.Pid)
		}
		if st.Total > 0 {
			line += fmt.Sprintf(" (%d/%d services)", st.Running, st.Total)
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func actLogs(ctx context.Context, a *App, unitArg string, n int, clear bool) error {
	name := supervise.UnitGateway
	if unitArg != "" {
		var err error
		if name, err = parseUnit(unitArg); err != nil {
			return err
		}
	}
	if clear {
		if !a.confirm(fmt.Sprintf("truncate %s logs?", name)) {
			info("log truncation declined")
			return nil
		}
		return a.sup.TruncateLog(name)
	}
	out, err := a.sup.TailLog(ctx, name, n)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintln(a.out, out)
	}
	return nil
}

func actTest(ctx context.Context, a *App, fix, bench bool) error {
	agg := diag.NewAggregator(a.engine, a.sup, a.gatewayPort)
	report := agg.Run(ctx, bench)
	printReport(a, report)

	if fix && len(report.Failed()) > 0 {
		results := agg.Fix(ctx, report, func(c diag.Check) bool {
			return a.confirm(fmt.Sprintf("apply fix for %s (%s)?", c.Name, c.Remediation))
		})
		for _, r := range results {
			if r.Err != nil {
				errl("fix %s: %v", r.Name, r.Err)
			} else {
				info("fix %s: applied", r.Name)
			}
		}
	}

	if !report.OK() {
		return fmt.Errorf("%d check(s) failed", len(report.Failed()))
	}
	return nil
}

func printReport(a *App, r diag.Report) {
	for _, c := range r.Checks {
		mark := "ok  "
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(a.out, "%s %-14s %8s  %s\n", mark, c.Name, c.Latency.Round(time.Millisecond), c.Detail)
		if !c.OK && c.Remediation != "" {
			hint := c.Remediation
			if c.Fixable() {
				hint += " (or rerun with --fix)"
			}
			fmt.Fprintf(a.out, "     %-14s %8s  try: %s\n", "", "", hint)
		}
	}
	fmt.Fprintf(a.out, "resources: %s\n", r.Resources)
	if r.Bench != nil {
		fmt.Fprintf(a.out, "benchmark: %d words in %s (%.1f words/sec)\n",
			r.Bench.Words, r.Bench.Elapsed.Round(time.Millisecond), r.Bench.WordsPerSec)
	}
	if r.BenchErr != nil {
		errl("benchmark: %v", r.BenchErr)
	}
}

func actModels(ctx context.Context, a *App) error {
	models, err := a.engine.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		info("no models installed on %s", a.engine.BaseURL())
		return nil
	}
	for _, m := range models {
		fmt.Fprintf(a.out, "%-40s %8.1f GB  %s\n", m.Name, float64(m.Size)/(1<<30), m.ModifiedAt)
	}
	return nil
}

func actPull(ctx context.Context, a *App, name string) error {
	info("pulling %s from %s", name, a.engine.BaseURL())
	var lastStatus string
	err := a.engine.Pull(ctx, name, func(status string, completed, total int64) {
		if total > 0 {
			fmt.Fprintf(a.out, "\r%s: %d%%", status, completed*100/total)
			lastStatus = status
			return
		}
		if status != lastStatus {
			if lastStatus != "" {
				fmt.Fprintln(a.out)
			}
			fmt.Fprint(a.out, status)
			lastStatus = status
		}
	})
	fmt.Fprintln(a.out)
	if err != nil {
		return err
	}
	info("pull complete: %s", name)
	return nil
}

func actPorts(ctx context.Context, a *App, assign bool) error {
	busy := ports.IsBusy(a.gatewayPort)
	fmt.Fprintf(a.out, "persisted gateway port: %d (%s)\n", a.gatewayPort, busyWord(busy))

	if !assign {
		return nil
	}
	port, err := ports.FindAvailablePort(a.cfg.PortLow, a.cfg.PortHigh)
	if err != nil {
		return err
	}
	if port == a.gatewayPort {
		info("persisted port %d is already the best available", port)
		return nil
	}
	if !a.confirm(fmt.Sprintf("persist gateway port %d (was %d)?", port, a.gatewayPort)) {
		info("port assignment declined")
		return nil
	}
	if err := a.store.Set(config.KeyGatewayPort, fmt.Sprint(port)); err != nil {
		return err
	}
	a.gatewayPort = port
	info("gateway port %d persisted to %s; restart the gateway and worker to adopt it", port, a.store.Path())
	return nil
}

func busyWord(b bool) string {
	if b {
		return "in use"
	}
	return "free"
}
