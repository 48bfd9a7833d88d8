package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

type globalFlags struct {
	configPath string
	dev        bool
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "activation-platform",
		Short:         "Single-use activation code service",
		Long:          "activation-platform issues, verifies and expires single-use product activation codes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "path to YAML config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&g.dev, "dev", false, "developer mode: console logs, unmasked codes, optional admin auth")

	rootCmd.AddCommand(
		RunServeCommand(&g),
		RunMigrateCommand(&g),
		RunCleanupCommand(&g),
		RunGenerateConfigCommand(),
		RunVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s (%s)\n", Version, Commit)
		},
	}
}
