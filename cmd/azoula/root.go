package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/azoula-gateway/internal/audit"
	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/gateway"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/database"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/azoula-gateway/migrations"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string

	out    io.Writer
	errOut io.Writer

	cfg *config.Config
	log *logging.Logger

	// auditLog is set while a snapshot store is open.
	auditLog audit.Repository
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "azoula",
		Short: "Azoula smart gateway client",
		Long: `azoula drives an Azoula/Sunricher gateway through the MQTT broker it
embeds: discovery, property reads and writes, service calls, and a
long-running HTTP/WebSocket service.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		Version:           version,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetVersionTemplate(fmt.Sprintf("azoula %s\n", version))

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file path (env: AZOULA_CONFIG)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newCheckCmd(a),
		newDiscoverCmd(a),
		newDevicesCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newInvokeCmd(a),
		newIdentifyCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// setup loads configuration and builds the logger. Log lines go to stderr;
// stdout carries command output.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if skipsConfig(cmd) {
		return nil
	}

	path := a.configPath
	if path == "" {
		path = os.Getenv("AZOULA_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	a.cfg = cfg
	a.log = logging.New(cfg.Logging, version, a.errOut)
	a.log.Debug("configuration loaded", "path", path, "gateway_id", cfg.Gateway.ID)
	return nil
}

// connect builds a gateway client and connects it.
func (a *app) connect(ctx context.Context) (*gateway.Gateway, error) {
	gw, err := gateway.New(gateway.Options{
		Gateway:  a.cfg.Gateway,
		MQTT:     a.cfg.MQTT,
		Timeouts: a.cfg.Timeouts,
		Logger:   a.log,
	})
	if err != nil {
		return nil, err
	}
	if err := gw.Connect(ctx); err != nil {
		gw.Close()
		return nil, err
	}
	a.log.Info("connected to gateway",
		"gateway_id", gw.ID(),
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
	)
	return gw, nil
}

// openStore opens and migrates the snapshot database.
func (a *app) openStore(ctx context.Context) (*database.DB, *device.SQLiteRepository, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	if applied > 0 {
		a.log.Info("database migrations applied", "count", applied)
	}
	return db, device.NewSQLiteRepository(db), nil
}

// restore seeds gw with the stored snapshot so capability checks apply.
// A missing or unreadable store is not an error.
func (a *app) restore(ctx context.Context, gw *gateway.Gateway, repo device.Repository) {
	snapshots, err := repo.List(ctx, gw.ID())
	if err != nil {
		a.log.Warn("could not load stored devices", "error", err)
		return
	}
	if len(snapshots) > 0 {
		gw.Restore(snapshots)
		a.log.Debug("restored stored devices", "devices", len(snapshots))
	}
}

// withSnapshot connects, restores the stored device list when a database
// is configured, and runs fn.
func (a *app) withSnapshot(ctx context.Context, fn func(gw *gateway.Gateway) error) error {
	gw, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer gw.Close()

	if a.cfg.Database.Path != "" {
		db, repo, err := a.openStore(ctx)
		if err != nil {
			a.log.Warn("snapshot store unavailable", "error", err)
		} else {
			defer db.Close()
			a.restore(ctx, gw, repo)
			a.auditLog = audit.NewSQLiteRepository(db)
			defer func() { a.auditLog = nil }()
		}
	}
	return fn(gw)
}

// recordAction writes an audit entry when a store is open.
func (a *app) recordAction(ctx context.Context, action, deviceID string, details map[string]any, opErr error) {
	if a.auditLog == nil {
		return
	}
	e := &audit.Entry{
		GatewayID: a.cfg.Gateway.ID,
		DeviceID:  deviceID,
		Action:    action,
		Source:    audit.SourceCLI,
		Details:   details,
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if err := a.auditLog.Create(context.WithoutCancel(ctx), e); err != nil {
		a.log.Warn("failed to record audit entry", "action", action, "error", err)
	}
}

func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "help", "completion":
			return true
		}
	}
	return false
}
