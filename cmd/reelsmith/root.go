package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "reelsmith",
		Short:         "Reelsmith turns a topic into a narrated video",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A .env in the working directory can carry API keys; absence
			// is fine.
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newStatusCommand(&configFlag))
	rootCmd.AddCommand(newProjectsCommand(&configFlag))
	rootCmd.AddCommand(newConfigCommand(&configFlag))

	return rootCmd
}
