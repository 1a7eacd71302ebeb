// Package cli implements the nd3d command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tendant/nd3-capture-pipeline/internal/config"
)

var configPath string

// NewRootCmd builds the nd3d command tree
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nd3d",
		Short: "ND3 capture ingestion and reconstruction pipeline",
		Long: `nd3d watches a directory for capture archives, unpacks them, runs the
channel split, raw conversion and ND3 reconstruction tools over their
contents and writes a meta.json record describing every derived file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file (environment variables take precedence)")

	rootCmd.AddCommand(newWatchCmd(version))
	rootCmd.AddCommand(newProcessCmd(version))
	rootCmd.AddCommand(newResynthesizeCmd(version))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRecordCmd())

	return rootCmd
}

// Execute runs the root command
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
