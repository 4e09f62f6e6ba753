package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/velociti/velociti/internal/app"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/logger"
)

// cli carries state shared by every subcommand once settings are loaded.
type cli struct {
	configPath string
	settings   *conf.Settings
	log        logger.Logger
	out        io.Writer
	errOut     io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "velociti",
		Short:         "Airline revenue management alerts, agents and analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "path to config.yaml (default: search ., ~/.config/velociti, /etc/velociti)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("database-url", "", "database URL or sqlite path")
	pf.String("env", "", "environment: development, production or test")

	root.AddCommand(
		c.serveCommand(),
		c.migrateCommand(),
		c.seedCommand(),
		c.agentsCommand(),
		c.watchCommand(),
		c.configCommand(),
	)
	return root
}

// load reads settings with any changed flags taking precedence over the
// environment and the config file.
func (c *cli) load(cmd *cobra.Command) error {
	flags := cmd.Flags()
	s, err := conf.Load(c.configPath,
		conf.WithFlag("log.level", flags.Lookup("log-level")),
		conf.WithFlag("database.url", flags.Lookup("database-url")),
		conf.WithFlag("environment", flags.Lookup("env")),
		conf.WithFlag("server.port", flags.Lookup("port")),
	)
	if err != nil {
		return err
	}
	c.settings = s
	c.log = app.NewLogger(s, c.errOut)
	return nil
}
