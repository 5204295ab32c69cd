package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/azoula-gateway/internal/audit"
	"github.com/nerrad567/azoula-gateway/internal/device"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var (
		loadTSL bool
		save    bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the gateway's sub-devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			gw, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer gw.Close()

			devices, err := gw.DiscoverDevices(ctx, loadTSL)
			if err != nil {
				return err
			}

			snapshots := device.Snapshots(devices)

			if save {
				db, repo, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := repo.Save(ctx, gw.ID(), snapshots); err != nil {
					return fmt.Errorf("saving snapshot: %w", err)
				}
				a.auditLog = audit.NewSQLiteRepository(db)
				a.recordAction(ctx, audit.ActionDiscover, "", map[string]any{"tsl": loadTSL, "devices": len(snapshots)}, nil)
				a.log.Info("snapshot saved", "path", db.Path(), "devices", len(snapshots))
			}

			if asJSON {
				return printJSON(a.out, snapshots)
			}
			return printDevices(a.out, snapshots)
		},
	}

	cmd.Flags().BoolVar(&loadTSL, "tsl", false, "Fetch each device's capability model")
	cmd.Flags().BoolVar(&save, "save", false, "Store the result in the snapshot database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newDevicesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices from the stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, repo, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			snapshots, err := repo.List(ctx, a.cfg.Gateway.ID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(a.out, snapshots)
			}
			return printDevices(a.out, snapshots)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
