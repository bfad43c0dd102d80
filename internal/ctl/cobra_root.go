package ctl

import (
	"os"

	"github.com/spf13/cobra"
)

// buildRootCmd constructs the Cobra command tree wired to the fn* actions.
func buildRootCmd(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "infergatectl",
		Short:         "Supervise the local inference stack: daemon, gateway and worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", a.cfg.LogLvl, "Log level: debug|info|warn|error (defaults INFERGATE_LOG_LEVEL or info)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f := cmd.InheritedFlags().Lookup("log-level"); f != nil {
			if v := f.Value.String(); v != "" {
				a.cfg.LogLvl = v
			}
		}
		SetLogLevel(a.cfg.LogLvl)
	}

	unitArgs := cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs)
	validUnits := []string{"daemon", "gateway", "worker"}
	unitOf := func(args []string) string {
		if len(args) == 1 {
			return args[0]
		}
		return ""
	}

	startCmd := &cobra.Command{
		Use:       "start [daemon|gateway|worker]",
		Short:     "Start one unit, or the whole stack in dependency order",
		Example:   "  infergatectl start\n  infergatectl start daemon",
		Args:      unitArgs,
		ValidArgs: validUnits,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnStart(cmd.Context(), a, unitOf(args))
		},
	}

	var stopForce bool
	stopCmd := &cobra.Command{
		Use:       "stop [daemon|gateway|worker]",
		Short:     "Stop one unit, or the whole stack (worker first)",
		Args:      unitArgs,
		ValidArgs: validUnits,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnStop(cmd.Context(), a, unitOf(args), stopForce)
		},
	}
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "Escalate to SIGKILL when graceful stop fails")

	var restartForce bool
	restartCmd := &cobra.Command{
		Use:       "restart [daemon|gateway|worker]",
		Short:     "Restart one unit, or the whole stack in dependency order",
		Args:      unitArgs,
		ValidArgs: validUnits,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnRestart(cmd.Context(), a, unitOf(args), restartForce)
		},
	}
	restartCmd.Flags().BoolVar(&restartForce, "force", false, "Escalate to SIGKILL when graceful stop fails")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every managed unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnStatus(cmd.Context(), a)
		},
	}

	var logLines int
	var logClear bool
	logsCmd := &cobra.Command{
		Use:       "logs [daemon|gateway|worker]",
		Short:     "Tail a unit's log (gateway by default)",
		Example:   "  infergatectl logs daemon -n 100\n  infergatectl logs gateway --clear",
		Args:      unitArgs,
		ValidArgs: validUnits,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnLogs(cmd.Context(), a, unitOf(args), logLines, logClear)
		},
	}
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "Number of trailing lines")
	logsCmd.Flags().BoolVar(&logClear, "clear", false, "Truncate the log instead of reading it (asks first)")

	var testFix, testBench bool
	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Run the diagnostic battery against the whole stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnTest(cmd.Context(), a, testFix, testBench)
		},
	}
	testCmd.Flags().BoolVar(&testFix, "fix", false, "Offer automatic remediation for failed checks (asks per fix)")
	testCmd.Flags().BoolVar(&testBench, "bench", false, "Additionally time one generation round-trip")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List models installed on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnModels(cmd.Context(), a)
		},
	}

	pullCmd := &cobra.Command{
		Use:     "pull <name>",
		Short:   "Pull a model onto the backend",
		Example: "  infergatectl pull llama3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnPull(cmd.Context(), a, args[0])
		},
	}

	var portsAssign bool
	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "Show the persisted gateway port assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnPorts(cmd.Context(), a, portsAssign)
		},
	}
	portsCmd.Flags().BoolVar(&portsAssign, "assign", false, "Negotiate a free port and persist it (asks first)")

	root.AddCommand(startCmd, stopCmd, restartCmd, statusCmd, logsCmd, testCmd, modelsCmd, pullCmd, portsCmd)

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	root.AddCommand(completionCmd)

	return root
}
