package main

import (
	"context"

	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/gateway"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/database"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/influxdb"
)

type storeHandle struct {
	db   *database.DB
	repo *device.SQLiteRepository
}

// session is a connected gateway with its store, telemetry and recorder,
// as used by the long-running commands.
type session struct {
	a      *app
	gw     *gateway.Gateway
	store  *storeHandle
	influx *influxdb.Client
	detach func()
}

// start connects the gateway, opens the store when a database path is
// configured, connects telemetry when enabled and attaches the recorder.
func (a *app) start(ctx context.Context) (*session, error) {
	s := &session{a: a}

	if a.cfg.Database.Path != "" {
		db, repo, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		s.store = &storeHandle{db: db, repo: repo}
	}

	influx, err := a.openTelemetry(ctx)
	if err != nil {
		s.close()
		return nil, err
	}
	s.influx = influx

	gw, err := a.connect(ctx)
	if err != nil {
		s.close()
		return nil, err
	}
	s.gw = gw

	if s.store != nil {
		a.restore(ctx, gw, s.store.repo)
	}
	s.detach = a.newRecorder(gw, s.store, influx).attach(gw)
	return s, nil
}

func (s *session) saveSnapshot(ctx context.Context) {
	if err := s.store.repo.Save(ctx, s.gw.ID(), device.Snapshots(s.gw.Devices())); err != nil {
		s.a.log.Warn("failed to persist discovery snapshot", "error", err)
	}
}

// close releases everything in reverse order of start.
func (s *session) close() {
	if s.gw != nil {
		s.a.log.Info("disconnecting from gateway")
		if err := s.gw.Close(); err != nil {
			s.a.log.Error("error closing gateway", "error", err)
		}
	}
	// Detach after Close so events emitted during shutdown are recorded.
	if s.detach != nil {
		s.detach()
	}
	if s.influx != nil {
		s.a.log.Info("closing InfluxDB connection")
		if err := s.influx.Close(); err != nil {
			s.a.log.Error("error closing InfluxDB", "error", err)
		}
	}
	if s.store != nil {
		s.a.log.Info("closing database")
		if err := s.store.db.Close(); err != nil {
			s.a.log.Error("error closing database", "error", err)
		}
	}
}
