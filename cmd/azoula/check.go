package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const checkTimeout = 15 * time.Second

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the gateway broker is reachable with the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()

			gw, err := a.connect(ctx)
			if err != nil {
				return fmt.Errorf("gateway %s unreachable: %w", a.cfg.Gateway.ID, err)
			}
			if err := gw.Close(); err != nil {
				a.log.Warn("disconnect failed", "error", err)
			}

			fmt.Fprintf(a.out, "gateway %s reachable at %s:%d\n",
				a.cfg.Gateway.ID, a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port)
			return nil
		},
	}
}
