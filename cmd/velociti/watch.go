package main

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/velociti/velociti/internal/realtime"
)

func (c *cli) watchCommand() *cobra.Command {
	var (
		url      string
		channels []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live alert events from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				host := c.settings.Server.Host
				if host == "" {
					host = "localhost"
				}
				url = "ws://" + net.JoinHostPort(host, strconv.Itoa(c.settings.Server.Port)) + "/ws"
			}
			rt := c.settings.Realtime
			client := realtime.NewClient(realtime.ClientConfig{
				URL:            url,
				ReconnectDelay: rt.ReconnectDelay.Std(),
				MaxAttempts:    rt.MaxReconnectAttempts,
				PingInterval:   rt.PingInterval.Std(),
				Channels:       channels,
			}, c.printMessage, c.log)
			return client.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "relay URL (default: ws://<server.host>:<server.port>/ws)")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "channels to subscribe to after connecting")
	return cmd
}

// printMessage writes one line per event. Pongs are keepalive noise.
func (c *cli) printMessage(msg *realtime.Message) {
	switch msg.Type {
	case realtime.TypePong:
		return
	case realtime.TypeInitialData:
		fmt.Fprintf(c.out, "%s: %d alerts\n", msg.Type, len(msg.Alerts))
		for i := range msg.Alerts {
			a := &msg.Alerts[i]
			fmt.Fprintf(c.out, "  [%s] %s %s (%s)\n", a.Priority, a.ID, a.Title, a.Status)
		}
	case realtime.TypeError:
		fmt.Fprintf(c.out, "%s: %s\n", msg.Type, msg.Error)
	default:
		data, _ := json.Marshal(msg.Data)
		if msg.Channel != "" {
			data = []byte(strconv.Quote(msg.Channel))
		}
		fmt.Fprintf(c.out, "%s: %s\n", msg.Type, data)
	}
}
