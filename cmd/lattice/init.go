package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/config"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default lattice.json",
		Long: `Write a lattice.json with default values to the current directory.

Edit the file afterwards to change the listen address, allow remote
origins on the live endpoint, or turn on snapshot persistence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing lattice.json")

	return cmd
}

func runInit(force bool) error {
	path := filepath.Join(".", config.ConfigFileName)

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", config.ConfigFileName)
	}

	cfg := config.New()
	cfg.Snapshot.Dir = "./snapshots"
	cfg.Snapshot.EveryNChanges = 50
	cfg.Snapshot.MinIntervalSeconds = 300

	if err := cfg.SaveTo(path); err != nil {
		return err
	}

	success("Created %s", config.ConfigFileName)
	info("Listen address: %s", cfg.Addr)
	info("Snapshots:      %s (every %d changes)", cfg.Snapshot.Dir, cfg.Snapshot.EveryNChanges)
	info("Run 'lattice serve' to start the server")
	return nil
}
