package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/azoula-gateway/internal/api"
	"github.com/nerrad567/azoula-gateway/internal/audit"
	"github.com/nerrad567/azoula-gateway/internal/gateway"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/influxdb"
)

// openTelemetry connects to InfluxDB when enabled. It returns nil, nil when
// the integration is off.
func (a *app) openTelemetry(ctx context.Context) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		a.log.Debug("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		a.log.Error("InfluxDB write error", "error", err)
	})
	a.log.Info("InfluxDB connected",
		"url", a.cfg.InfluxDB.URL,
		"org", a.cfg.InfluxDB.Org,
		"bucket", a.cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// newRecorder wires the snapshot store and telemetry into a recorder.
func (a *app) newRecorder(gw *gateway.Gateway, store *storeHandle, influx *influxdb.Client) *recorder {
	r := &recorder{gatewayID: gw.ID(), log: a.log}
	if store != nil {
		r.repo = store.repo
	}
	if influx != nil {
		r.sink = influx
	}
	return r
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print gateway events until interrupted",
		Long: `Print online status, property and device events as they arrive. When
InfluxDB is enabled the events are also written as telemetry, and with a
database configured the stored snapshot is kept current.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := a.start(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			for _, kind := range []gateway.EventKind{
				gateway.EventOnlineStatus,
				gateway.EventPropertyUpdate,
				gateway.EventDevice,
			} {
				defer s.gw.RegisterListener(kind, func(ev gateway.Event) {
					fmt.Fprintln(a.out, formatEvent(ev))
				})()
			}

			a.log.Info("watching gateway events", "gateway_id", s.gw.ID())
			<-ctx.Done()
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var discover bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := a.start(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if discover {
				if _, err := s.gw.DiscoverDevices(ctx, true); err != nil {
					a.log.Warn("initial discovery failed", "error", err)
				} else if s.store != nil {
					s.saveSnapshot(ctx)
				}
			}

			deps := api.Deps{
				Config:  a.cfg.API,
				WS:      a.cfg.WebSocket,
				Logger:  a.log.With("component", "api"),
				Gateway: s.gw,
				Version: version,
			}
			deps.Checks = map[string]api.HealthChecker{}
			if s.store != nil {
				deps.Repository = s.store.repo
				deps.Audit = audit.NewSQLiteRepository(s.store.db)
				deps.Checks["database"] = s.store.db
			}
			if s.influx != nil {
				deps.Checks["influxdb"] = s.influx
			}
			srv, err := api.New(deps)
			if err != nil {
				return fmt.Errorf("creating API server: %w", err)
			}
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("starting API server: %w", err)
			}
			defer func() {
				if err := srv.Close(); err != nil {
					a.log.Error("error closing API server", "error", err)
				}
			}()

			a.log.Info("initialisation complete, waiting for shutdown signal")
			<-ctx.Done()
			a.log.Info("shutdown signal received, cleaning up")
			return nil
		},
	}

	cmd.Flags().BoolVar(&discover, "discover", false, "Run a discovery with TSL before serving")
	return cmd
}
