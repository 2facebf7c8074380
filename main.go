// Package main is the entry point for the trailguard wildlife alert server.
package main

import (
	"context"
	"fmt"
	"os"

	"trailguard/bootstrap"
	"trailguard/cmd"
)

// run initializes and starts the server, then blocks until shutdown.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

func main() {
	// "trailguard simulate ..." runs the device simulator instead of the
	// server.
	if len(os.Args) > 1 && os.Args[1] == "simulate" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
		simulateCmd := cmd.NewSimulateCmd()
		if err := simulateCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
