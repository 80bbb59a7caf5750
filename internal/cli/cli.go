// Package cli wires the cobra command surface to the worker.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"platesolver/internal/config"
	"platesolver/internal/logging"
	"platesolver/internal/solver"
)

// Version is stamped at build time.
var Version = "dev"

// Root carries the dependencies every command shares.
type Root struct {
	cfg *config.Config
	log *slog.Logger
}

// NewRootCmd creates the root cobra command.
func NewRootCmd(cfg *config.Config, log *slog.Logger) *cobra.Command {
	root := &Root{cfg: cfg, log: log}

	rootCmd := &cobra.Command{
		Use:   "platesolver",
		Short: "Plate-solving worker for survey images",
		Long: `platesolver consumes image references from a queue, plate-solves
each image with the astrometry.net toolchain, extracts calibrated
point sources and stamps, and persists the derived artifacts.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newSolveCmd(root))
	rootCmd.AddCommand(newToolsCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newToolsCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Check availability of the external astrometry tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			missing := 0
			for _, name := range solver.RequiredTools() {
				status := solver.CheckTool(name)
				logging.LogToolStatus(root.log, name, status.Available, status.Version, status.Path, status.Error)
				if status.Available {
					fmt.Printf("  %-12s ok  %s\n", name, status.Version)
				} else {
					fmt.Printf("  %-12s MISSING (%v)\n", name, status.Error)
					missing++
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d required tool(s) missing", missing)
			}
			return nil
		},
	}
}

func newConfigCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(root.cfg)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("platesolver %s\n", Version)
		},
	}
}
