package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/app"
)

func newService(st *app.Store, c *cli) *alerting.Service {
	return alerting.NewService(alerting.Repositories{
		Alerts:   st.Alerts,
		Agents:   st.Agents,
		Feedback: st.Feedback,
		Routes:   st.Routes,
	}, c.log)
}

func (c *cli) agentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and run monitoring agents",
	}
	cmd.AddCommand(c.agentsListCommand(), c.agentsRunCommand())
	return cmd
}

func (c *cli) agentsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents with their status and accuracy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := newService(st, c).ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tACCURACY\tALERTS\tLAST RUN")
			for _, a := range list {
				lastRun := "never"
				if a.LastRunAt != nil {
					lastRun = a.LastRunAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\n", a.ID, a.Status, a.Accuracy, a.AlertsGenerated, lastRun)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) agentsRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Run one agent against the latest route performance snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			runner := app.NewRunner(st, newService(st, c), c.settings, c.log)
			result, err := runner.Run(cmd.Context(), args[0])
			if result != nil {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(result); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}
}
