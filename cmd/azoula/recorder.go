package main

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/gateway"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// telemetry is the part of *influxdb.Client the recorder writes to.
type telemetry interface {
	WriteProperties(gatewayID, deviceID string, props protocol.Properties) int
	WriteOnlineStatus(gatewayID, deviceID string, online bool)
	WriteDeviceEvent(gatewayID, deviceID, identifier string, params map[string]any)
}

const recordTimeout = 5 * time.Second

// recorder mirrors gateway events into the snapshot store and the
// telemetry sink. Either may be nil.
type recorder struct {
	gatewayID string
	repo      device.Repository
	sink      telemetry
	log       *logging.Logger
}

// attach registers the recorder for every event kind and returns a
// function that detaches it.
func (r *recorder) attach(gw *gateway.Gateway) func() {
	kinds := []gateway.EventKind{
		gateway.EventOnlineStatus,
		gateway.EventPropertyUpdate,
		gateway.EventDevice,
	}
	revokes := make([]func(), 0, len(kinds))
	for _, kind := range kinds {
		revokes = append(revokes, gw.RegisterListener(kind, r.handle))
	}
	return func() {
		for _, revoke := range revokes {
			revoke()
		}
	}
}

func (r *recorder) handle(ev gateway.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	switch ev.Kind {
	case gateway.EventOnlineStatus:
		if ev.DeviceID == r.gatewayID {
			if r.sink != nil {
				r.sink.WriteOnlineStatus(r.gatewayID, "", ev.Online)
			}
			return
		}
		if r.sink != nil {
			r.sink.WriteOnlineStatus(r.gatewayID, ev.DeviceID, ev.Online)
		}
		if r.repo != nil {
			r.store(ev.DeviceID, r.repo.UpdateOnline(ctx, r.gatewayID, ev.DeviceID, ev.Online))
		}

	case gateway.EventPropertyUpdate:
		if r.sink != nil {
			r.sink.WriteProperties(r.gatewayID, ev.DeviceID, ev.Properties)
		}
		if r.repo != nil {
			r.store(ev.DeviceID, r.repo.UpdateProperties(ctx, r.gatewayID, ev.DeviceID, ev.Properties))
		}

	case gateway.EventDevice:
		if r.sink != nil {
			r.sink.WriteDeviceEvent(r.gatewayID, ev.DeviceID, ev.Identifier, ev.Params)
		}
	}
}

func (r *recorder) store(deviceID string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, device.ErrDeviceNotFound):
		r.log.Debug("event for device not in snapshot", "device_id", deviceID)
	default:
		r.log.Warn("failed to record device state", "device_id", deviceID, "error", err)
	}
}
