package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tugasky/jira-installer/internal/logging"
)

type rootFlags struct {
	logFile string
	plain   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "jira-installer",
		Short:         "Guided installer for an Atlassian Jira container stack",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.logFile, "log", "", "record the run to a structured log file")
	root.PersistentFlags().BoolVar(&flags.plain, "plain", false, "plain console output instead of the terminal UI")

	root.AddCommand(
		newInstallCmd(flags),
		newStatusCmd(flags),
		newUpdateCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the installer version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "jira-installer %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}

// openRecorder returns the run recorder for --log, or a no-op one.
func openRecorder(flags *rootFlags) (*logging.Recorder, error) {
	if flags.logFile == "" {
		return logging.Nop(), nil
	}
	rec, err := logging.Open(flags.logFile)
	if err != nil {
		return nil, fmt.Errorf("--log: %w", err)
	}
	return rec, nil
}
