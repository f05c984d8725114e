package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/campusfeed/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the campusfeed command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "campusfeed",
		Short: "Personalized campus social feed",
		Long: `campusfeed ranks club posts for each viewer by follows, engagement,
interest match and event seat scarcity.

Examples:
  campusfeed serve --config config.yaml
  campusfeed rank --snapshot snapshot.yaml --viewer viewer.yaml --explain
  campusfeed loadgen --url http://localhost:9080 --changes 5000`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return nil
			}
			// config.Load reads the file path from the environment.
			return os.Setenv(config.EnvConfigFile, configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (overrides "+config.EnvConfigFile+")")

	root.AddCommand(newServeCmd(), newRankCmd(), newLoadgenCmd())
	return root
}
