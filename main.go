// Package main is the entry point for the docstore persistence service.
package main

import (
	"context"
	"fmt"
	"os"

	"docstore/bootstrap"
	"docstore/cmd"
)

// run initializes and runs the persistence daemon.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

// main dispatches to the maintenance CLI when a subcommand is given;
// otherwise it runs the daemon.
func main() {
	if len(os.Args) > 1 {
		maintenance := cmd.NewMaintenanceCmd()
		if err := maintenance.Execute(); err != nil {
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
