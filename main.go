// Package main is the entry point for the GhostMesh core.
package main

import (
	"fmt"
	"os"

	"ghostmesh/bootstrap"
	"ghostmesh/cmd"
)

// run initializes and starts the core, then blocks until shutdown.
func run() error {
	app, err := bootstrap.NewApp()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

func main() {
	// CLI subcommand: query a running core instead of starting one.
	if len(os.Args) > 1 && os.Args[1] == "status" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		if err := cmd.NewStatusCmd().Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
