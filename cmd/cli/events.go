package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/EcoCode-hq/ecocode/internal/config"
	"github.com/EcoCode-hq/ecocode/internal/nats"
)

func eventsCmd() *cobra.Command {
	var (
		natsURL  string
		consumer string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow analysis report events published by the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if natsURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				natsURL = cfg.NATSURL
			}
			if natsURL == "" {
				return fmt.Errorf("no NATS server: pass --nats or set NATS_URL")
			}

			client, err := nats.NewClient(natsURL, "ecocode-cli")
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := client.SetupStreams(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return client.ConsumeReports(ctx, consumer, func(ev nats.ReportEvent) error {
				renderEvent(out, ev)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", "", "NATS server URL (defaults to NATS_URL)")
	cmd.Flags().StringVar(&consumer, "consumer", "ecocode-cli", "durable consumer name")

	return cmd
}
