package main

import (
	"github.com/spf13/cobra"
	"github.com/velociti/velociti/internal/app"
	"github.com/velociti/velociti/internal/logger"
)

func (c *cli) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, WebSocket relay and agent scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, c.settings, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			c.log.Info("velociti starting",
				logger.String("environment", c.settings.Environment),
				logger.String("addr", c.settings.Server.ListenAddr()),
				logger.String("database", c.settings.Database.Driver),
				logger.Any("llm_providers", a.Relay.Providers()))
			err = a.Run(ctx)
			c.log.Info("velociti stopped")
			return err
		},
	}
	cmd.Flags().Int("port", 0, "HTTP listen port")
	return cmd
}
