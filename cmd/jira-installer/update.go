package main

import (
	"github.com/spf13/cobra"

	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/engine/update"
	"github.com/tugasky/jira-installer/internal/logging"
	"github.com/tugasky/jira-installer/internal/ui"
)

func newUpdateCmd(flags *rootFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check GitHub for a newer installer release and install it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := openRecorder(flags)
			if err != nil {
				return err
			}
			defer rec.Close()

			q := dispatch.New()
			eng := update.New(q, Version)

			done := make(chan struct{})
			go func() {
				defer close(done)
				eng.Run(cmd.Context())
			}()

			h := ui.NewPlainHandler(cmd.OutOrStdout(), cmd.InOrStdin())
			var handler dispatch.Handler = h
			if yes {
				handler = autoConfirm{next: h}
			}
			ui.RunPlain(q, logging.Tee(handler, rec), done)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "install without asking")
	return cmd
}

// autoConfirm answers every confirmation with yes, for --yes runs.
type autoConfirm struct {
	next dispatch.Handler
}

func (a autoConfirm) HandleLog(e domain.LogEntry)          { a.next.HandleLog(e) }
func (a autoConfirm) HandleNotify(n domain.Notice)         { a.next.HandleNotify(n) }
func (a autoConfirm) HandleProgress(label string, pct int) { a.next.HandleProgress(label, pct) }
func (a autoConfirm) HandleConfirm(c *dispatch.Confirmation) {
	c.Answer(true)
}
