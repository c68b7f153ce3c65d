package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tugasky/jira-installer/internal/config"
	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/dockerx"
	"github.com/tugasky/jira-installer/internal/engine/install"
	"github.com/tugasky/jira-installer/internal/logging"
	"github.com/tugasky/jira-installer/internal/pipeline"
	"github.com/tugasky/jira-installer/internal/ui"
)

func newInstallCmd(flags *rootFlags) *cobra.Command {
	var (
		configFile string
		port       int
		name       string
		network    string
	)

	cmd := &cobra.Command{
		Use:   "install <jira-version>",
		Short: "Install a Jira container stack (e.g. 9.15.0, 10.2.6, 11.0.0)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ForVersion(args[0])
			if err != nil {
				return err
			}
			if configFile != "" {
				overrides, err := config.LoadOverrides(configFile)
				if err != nil {
					return err
				}
				overrides.Apply(&cfg)
			}
			// Flags trump the file.
			if port > 0 {
				cfg.Port = port
			}
			if name != "" {
				cfg.ContainerName = name
			}
			if network != "" {
				cfg.NetworkName = network
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

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

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			q := dispatch.New()
			done := make(chan struct{})

			if flags.plain {
				h := ui.NewPlainHandler(cmd.OutOrStdout(), cmd.InOrStdin())
				pipe := pipeline.New(q, rec.StepObserver(h.ObserveSnapshot))
				eng := install.New(cfg, q, pipe, rt)
				go func() {
					defer close(done)
					eng.Run(ctx)
				}()
				ui.RunPlain(q, logging.Tee(h, rec), done)
				return nil
			}

			m := ui.NewModel(ui.Params{
				Title:   "Jira Installer",
				Version: Version,
				Done:    done,
				Cancel:  cancel,
			})
			pipe := pipeline.New(q, rec.StepObserver(m.ObserveSnapshot))
			eng := install.New(cfg, q, pipe, rt)
			go func() {
				defer close(done)
				eng.Run(ctx)
			}()
			return ui.Run(q, m, logging.Tee(m, rec))
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML file with advanced settings")
	cmd.Flags().IntVar(&port, "port", 0, "host port for Jira (default derived from the version)")
	cmd.Flags().StringVar(&name, "name", "", "Jira container name (default jira<version>)")
	cmd.Flags().StringVar(&network, "network", "", "docker network name (default jira_network)")

	return cmd
}
