// Package cli implements discoveryctl, the command line companion to the
// discovery server.
package cli

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Execute() error {
	return NewRoot().Execute()
}

func NewRoot() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "discoveryctl",
		Short:        "Strategic discovery wizard and report tooling",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	root.AddCommand(
		ReportCmd(),
		TaxonomyCmd(),
		RunCmd(),
		PrefsCmd(),
		HealthCmd(),
	)
	return root
}
