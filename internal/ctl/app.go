// Package ctl implements the infergatectl control CLI: unit lifecycle,
// log access, the diagnostic battery and model management, all grouped
// under one cobra command tree.
package ctl

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"infergate/internal/backend"
	"infergate/internal/common/fsutil"
	"infergate/internal/config"
	"infergate/internal/diag"
	"infergate/internal/supervise"
)

// Default port negotiation range for --assign; the gateway itself uses the
// persisted assignment as its preferred port.
const (
	DefaultPortLow  = 8080
	DefaultPortHigh = 8180
	DefaultModel    = "llama3"
	DefaultPort     = 8080
)

// Config carries the resolved CLI-level settings.
type Config struct {
	BackendURL  string
	Model       string
	ComposeFile string
	LogDir      string
	LogLvl      string
	PortLow     int
	PortHigh    int
}

// DefaultConfig resolves settings from the environment.
func DefaultConfig() *Config {
	return &Config{
		BackendURL:  envStr("INFERGATE_BACKEND_URL", backend.DefaultURL),
		Model:       envStr("INFERGATE_MODEL", ""),
		ComposeFile: envStr("INFERGATE_COMPOSE_FILE", ""),
		LogDir:      envStr("INFERGATE_LOG_DIR", ""),
		LogLvl:      envStr("INFERGATE_LOG_LEVEL", "info"),
		PortLow:     envInt("INFERGATE_PORT_LOW", DefaultPortLow),
		PortHigh:    envInt("INFERGATE_PORT_HIGH", DefaultPortHigh),
	}
}

// unitManager is the supervisor surface the CLI drives.
// *supervise.Supervisor satisfies it.
type unitManager interface {
	Units() []supervise.UnitName
	Status(ctx context.Context, name supervise.UnitName) supervise.UnitStatus
	Start(ctx context.Context, name supervise.UnitName) (supervise.Outcome, error)
	Stop(ctx context.Context, name supervise.UnitName, force bool) (supervise.Outcome, error)
	Restart(ctx context.Context, name supervise.UnitName, force bool) (supervise.Outcome, error)
	StartAll(ctx context.Context) []supervise.ActionResult
	StopAll(ctx context.Context, force bool) []supervise.ActionResult
	RestartAll(ctx context.Context, force bool) []supervise.ActionResult
	TailLog(ctx context.Context, name supervise.UnitName, n int) (string, error)
	TruncateLog(name supervise.UnitName) error
}

// App bundles the wired dependencies behind the command tree.
type App struct {
	cfg    *Config
	sup    unitManager
	engine diag.Engine
	store  *config.Store

	gatewayPort int

	out io.Writer
	in  io.Reader
}

// NewApp resolves the persisted assignment and wires the real supervisor
// and backend client.
func NewApp(cfg *Config) (*App, error) {
	storePath, err := config.StorePath()
	if err != nil {
		return nil, err
	}
	store, err := config.OpenStore(storePath)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		if v, ok := store.Get(config.KeyModel); ok {
			model = v
		} else {
			model = DefaultModel
		}
	}
	if cfg.BackendURL == backend.DefaultURL {
		if v, ok := store.Get(config.KeyBackendURL); ok {
			cfg.BackendURL = v
		}
	}
	port := DefaultPort
	if v, ok := store.GetInt(config.KeyGatewayPort); ok {
		port = v
	}

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Dir(storePath)
	}
	if err := fsutil.EnsureDir(logDir); err != nil {
		return nil, err
	}

	debug("resolved backend=%s model=%q gateway port=%d store=%s", cfg.BackendURL, model, port, storePath)

	pm := supervise.NewDefaultProcessManager()
	compose := supervise.NewComposeRunner(pm, nil, cfg.ComposeFile)
	// the gateway binary resolves its own port from the persisted assignment
	units := supervise.DefaultUnits([]string{"infergate"}, logDir, compose)

	return &App{
		cfg:         cfg,
		sup:         supervise.New(pm, units, supervise.Options{}),
		engine:      backend.New(cfg.BackendURL, model, 5*time.Second),
		store:       store,
		gatewayPort: port,
		out:         os.Stdout,
		in:          os.Stdin,
	}, nil
}

// confirm asks the operator a yes/no question on the app's input stream.
func (a *App) confirm(prompt string) bool {
	io.WriteString(a.out, prompt+" [y/N]: ")
	sc := bufio.NewScanner(a.in)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}
