package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦  ┌─┐┌┬┐┌┬┐┬┌─┐┌─┐
  ║  ├─┤ │  │ ││  ├┤
  ╩═╝┴ ┴ ┴  ┴ ┴└─┘└─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "lattice",
		Short: "Reactive state server",
		Long: `Lattice is a reactive state server built on observable cells.

State lives in cells on a dependency graph; effects and watchers re-run
when the cells they read change. The server exposes that state over:

  • A WebSocket stream of store changes (with optional client writes)
  • Prometheus metrics for graph activity
  • JSON snapshots persisted to disk on a save policy`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands
	rootCmd.AddCommand(
		serveCmd(),
		initCmd(),
		versionCmd(),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the Lattice ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
