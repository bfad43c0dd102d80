package ctl

import (
	"fmt"
	"os"
	"strings"
)

func usage() {
	fmt.Println("Usage: infergatectl [--log-level info] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  start   [daemon|gateway|worker]")
	fmt.Println("  stop    [daemon|gateway|worker] [--force]")
	fmt.Println("  restart [daemon|gateway|worker] [--force]")
	fmt.Println("  status")
	fmt.Println("  logs    [daemon|gateway|worker] [-n N] [--clear]")
	fmt.Println("  test    [--fix] [--bench]")
	fmt.Println("  models")
	fmt.Println("  pull    <name>")
	fmt.Println("  ports   [--assign]")
}

// MainWithArgs is a testable variant of Main that accepts args explicitly
// and a pre-built App. It returns an exit code.
func MainWithArgs(a *App, args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	// "help" is only a command in the leading position; elsewhere it is an
	// ordinary argument (a model really can be named "help"). Flag forms
	// are left to cobra so subcommand help keeps working.
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage()
		return 0
	}
	root := buildRootCmd(a)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if strings.Contains(err.Error(), "unknown command") {
			usage()
		}
		return 1
	}
	return 0
}

// Main wires the real dependencies and runs os.Args. For use by
// cmd/infergatectl.
func Main() int {
	app, err := NewApp(DefaultConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return MainWithArgs(app, os.Args[1:])
}
