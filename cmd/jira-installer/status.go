package main

import (
	"github.com/spf13/cobra"

	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/dockerx"
	"github.com/tugasky/jira-installer/internal/engine/status"
	"github.com/tugasky/jira-installer/internal/logging"
	"github.com/tugasky/jira-installer/internal/ui"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show running containers, networks and volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := dockerx.New()
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, err := openRecorder(flags)
			if err != nil {
				return err
			}
			defer rec.Close()

			q := dispatch.New()
			done := make(chan struct{})
			go func() {
				defer close(done)
				status.Run(cmd.Context(), q, rt)
			}()

			h := ui.NewPlainHandler(cmd.OutOrStdout(), cmd.InOrStdin())
			ui.RunPlain(q, logging.Tee(h, rec), done)
			return nil
		},
	}
}
