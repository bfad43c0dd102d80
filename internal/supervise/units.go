package supervise

import "path/filepath"

// GatewayPattern matches the gateway binary's command line. pgrep/pkill -f
// take an ERE over the full cmdline; the anchors keep "infergate" from
// matching longer names such as the infergatectl control binary itself,
// which would invert detection and make stop signal the operator's CLI.
const GatewayPattern = `(^|/)infergate($| )`

// DefaultUnits builds the standard three-unit stack: the inference daemon,
// the gateway translator and the containerized worker. gatewayCmd is the
// command line used to launch the gateway when no init unit exists for it.
func DefaultUnits(gatewayCmd []string, logDir string, compose *ComposeRunner) []Unit {
	return []Unit{
		{
			Name:     UnitDaemon,
			Systemd:  "ollama",
			Pattern:  "ollama serve",
			StartCmd: []string{"ollama", "serve"},
			LogPath:  filepath.Join(logDir, "daemon.log"),
		},
		{
			Name:     UnitGateway,
			Pattern:  GatewayPattern,
			StartCmd: gatewayCmd,
			LogPath:  filepath.Join(logDir, "gateway.log"),
		},
		{
			Name:    UnitWorker,
			Compose: compose,
		},
	}
}
