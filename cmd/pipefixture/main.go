// Package main provides the pipefixture CLI: run build pipeline fixtures in
// throwaway workspaces and check them against golden files.
package main

import (
	"context"
	"os"
	"os/signal"

	"pipefixture/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := cli.NewApp()
	rootCmd := app.CreateRootCommand()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
