package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, tiers: %d, presets: %d\n",
				len(cfg.Providers), len(cfg.Tiers), len(cfg.Presets))
			fmt.Fprintf(out, "Workspace root: %s\n", cfg.Workspace.Root)
			fmt.Fprintf(out, "Transport: %s, metrics: %v\n", cfg.Server.Transport, cfg.Server.MetricsEnabled)
			fmt.Fprintf(out, "Tools: exec=%v git=%v write=%v delete=%v network=%v\n",
				cfg.Tools.AllowExec, cfg.Tools.AllowGit, cfg.Tools.AllowWrite,
				cfg.Tools.AllowDelete, cfg.Tools.AllowNetwork)
			return nil
		},
	}
}
