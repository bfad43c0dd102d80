package supervise

import (
	"context"
	"fmt"
	"strings"
)

// ComposeRunner wraps the four container-runtime primitives the supervisor
// needs: service listing with running/total counts, up, stop and restart.
// It shells the configured compose command through the ProcessManager.
type ComposeRunner struct {
	pm      ProcessManager
	command []string // e.g. ["docker", "compose"] or ["podman-compose"]
	file    string   // optional -f path
}

// NewComposeRunner builds a runner for the given compose command. An empty
// command defaults to `docker compose`.
func NewComposeRunner(pm ProcessManager, command []string, file string) *ComposeRunner {
	if len(command) == 0 {
		command = []string{"docker", "compose"}
	}
	return &ComposeRunner{pm: pm, command: command, file: file}
}

func (c *ComposeRunner) args(sub ...string) (string, []string) {
	args := append([]string(nil), c.command[1:]...)
	if c.file != "" {
		args = append(args, "-f", c.file)
	}
	return c.command[0], append(args, sub...)
}

// Services returns how many of the project's services are running out of
// the total defined. Zero defined services counts as nothing running.
func (c *ComposeRunner) Services(ctx context.Context) (running, total int, err error) {
	name, args := c.args("ps", "--services")
	out, err := c.pm.Run(ctx, name, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("listing services: %w", err)
	}
	total = countLines(out)

	name, args = c.args("ps", "--services", "--filter", "status=running")
	out, err = c.pm.Run(ctx, name, args...)
	if err != nil {
		return 0, total, fmt.Errorf("listing running services: %w", err)
	}
	return countLines(out), total, nil
}

// Up starts the project detached.
func (c *ComposeRunner) Up(ctx context.Context) error {
	name, args := c.args("up", "-d")
	_, err := c.pm.Run(ctx, name, args...)
	return err
}

// Stop stops the project's containers without removing them.
func (c *ComposeRunner) Stop(ctx context.Context) error {
	name, args := c.args("stop")
	_, err := c.pm.Run(ctx, name, args...)
	return err
}

// Restart restarts the project's containers.
func (c *ComposeRunner) Restart(ctx context.Context) error {
	name, args := c.args("restart")
	_, err := c.pm.Run(ctx, name, args...)
	return err
}

// Logs returns the last n log lines across the project's services.
func (c *ComposeRunner) Logs(ctx context.Context, n int) (string, error) {
	name, args := c.args("logs", "--tail", fmt.Sprint(n))
	out, err := c.pm.Run(ctx, name, args...)
	return string(out), err
}

func countLines(out []byte) int {
	n := 0
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
