package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/velociti/velociti/internal/app"
)

func (c *cli) openStore(cmd *cobra.Command) (*app.Store, error) {
	st, err := app.OpenStore(cmd.Context(), c.settings, c.log)
	if err != nil {
		return nil, err
	}
	if err := st.Manager.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(c.out, "schema up to date (%s)\n", st.Manager.Dialect())
			return nil
		},
	}
}

func (c *cli) seedCommand() *cobra.Command {
	var (
		days    int
		samples bool
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert default agents, generated route performance and optional demo alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			now := time.Now().UTC()
			if seed == 0 {
				seed = uint64(now.Unix())
			}
			seeder := st.Seeder()

			agents, err := seeder.Agents(ctx)
			if err != nil {
				return err
			}
			rows, err := seeder.RoutePerformance(ctx, days, now, seed)
			if err != nil {
				return err
			}
			alerts := 0
			if samples {
				if alerts, err = seeder.SampleAlerts(ctx, now); err != nil {
					return err
				}
			}
			fmt.Fprintf(c.out, "agents created: %d\nroute snapshots written: %d\nsample alerts created: %d\n",
				agents, rows, alerts)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "days of route performance history ending today")
	cmd.Flags().BoolVar(&samples, "samples", false, "insert demo alerts when the alert table is empty")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for generated snapshots (0 uses the clock)")
	return cmd
}
