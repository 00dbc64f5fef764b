package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/woram/pkg/config"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Assemble the configured stack and print its geometry",
	Long: `describe builds the whole stack from the configuration (including the
backing file, if one is configured) and prints the resulting geometry.
A configuration that cannot be assembled fails here rather than at
device-export time.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mem, err := config.Build(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backend:    %s", cfg.Backend.Kind)
		if cfg.Backend.Path != "" {
			fmt.Fprintf(out, " (%s)", cfg.Backend.Path)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "scheme:     %s\n", cfg.Woram.Kind)
		fmt.Fprintf(out, "posmap:     %s\n", cfg.PosMap.Kind)
		fmt.Fprintf(out, "crypto:     %s\n", cfg.Crypto.Split)
		fmt.Fprintf(out, "blocksize:  %d bytes\n", mem.Blocksize())
		fmt.Fprintf(out, "capacity:   %d blocks (%s)\n", mem.Size(), cfg.Backend.Size)
		fmt.Fprintf(out, "healthy:    %v\n", mem.Good())
		return nil
	},
}
