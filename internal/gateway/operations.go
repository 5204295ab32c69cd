package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/device"
	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
	"github.com/nerrad567/azoula-gateway/internal/tsl"
)

const (
	defaultClientIDPrefix = "azoula"

	defaultDiscoveryTimeout   = 30 * time.Second
	defaultTSLTimeout         = 5 * time.Second
	defaultPropertyGetTimeout = 3 * time.Second
	defaultServiceTimeout     = 5 * time.Second
)

func withDefaultTimeouts(t config.TimeoutConfig) config.TimeoutConfig {
	if t.Discovery <= 0 {
		t.Discovery = defaultDiscoveryTimeout
	}
	if t.TSL <= 0 {
		t.TSL = defaultTSLTimeout
	}
	if t.PropertyGet <= 0 {
		t.PropertyGet = defaultPropertyGetTimeout
	}
	if t.Service <= 0 {
		t.Service = defaultServiceTimeout
	}
	return t
}

func clampQoS(qos int) byte {
	switch {
	case qos < 0:
		return 0
	case qos > 2:
		return 2
	default:
		return byte(qos)
	}
}

// DiscoverDevices asks the gateway for its sub-devices and reassembles the
// paginated reply. The result replaces the gateway's device set.
//
// When the configured discovery timeout elapses the devices accumulated so
// far are returned without error. The timeout applies even when ctx carries
// a later deadline. A discovery superseded by a newer call returns
// ErrDiscoverySuperseded and no devices.
//
// With loadTSL set, each device's TSL is then fetched in turn, each under
// its own TSL timeout. A failed fetch leaves that device's TSL nil and does
// not affect the others.
//
// If ctx ends before the result is complete, including during the TSL
// phase, the call returns ctx's error and the device registry is left
// unchanged.
func (g *Gateway) DiscoverDevices(ctx context.Context, loadTSL bool) ([]*device.Device, error) {
	req := protocol.NewRequest(protocol.MethodDiscover, g.id)
	session := g.discovery.start(req.ID)

	if err := g.send(req); err != nil {
		g.discovery.finish(session)
		return nil, g.wrap("discover", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.timeouts.Discovery)
	defer cancel()

	timedOut := false
	select {
	case <-session.done:
	case <-waitCtx.Done():
		timedOut = true
	}

	records, superseded, failCode := g.discovery.finish(session)
	if superseded {
		return nil, g.wrap("discover", ErrDiscoverySuperseded)
	}
	if err := ctx.Err(); err != nil {
		return nil, g.wrap("discover", err)
	}
	switch {
	case timedOut:
		g.logger.Warn("discovery timed out, returning partial result", "gateway_id", g.id, "devices", len(records))
	case failCode != 0:
		g.logger.Warn("discovery ended early", "gateway_id", g.id, "code", failCode, "devices", len(records))
	}

	devices := make([]*device.Device, 0, len(records))
	for _, rec := range records {
		d, err := device.NewFromRecord(rec)
		if err != nil {
			g.logger.Warn("skipping device record", "error", err)
			continue
		}
		devices = append(devices, d)
	}

	if loadTSL {
		for _, d := range devices {
			if ctx.Err() != nil {
				g.logger.Warn("tsl loading interrupted", "gateway_id", g.id, "device_id", d.ID)
				break
			}
			m, err := g.fetchTSL(ctx, d.ID)
			if err != nil {
				g.logger.Warn("tsl unavailable", "device_id", d.ID, "error", err)
				continue
			}
			d.SetTSL(m)
		}
		if err := ctx.Err(); err != nil {
			return nil, g.wrap("discover", err)
		}
	}

	g.registry.Replace(devices)
	g.logger.Info("discovery complete", "gateway_id", g.id, "devices", len(devices))
	return devices, nil
}

// GetDeviceTSL fetches a device's capability model. If the device is in the
// current result set the model is attached to it.
func (g *Gateway) GetDeviceTSL(ctx context.Context, deviceID string) (*tsl.Model, error) {
	m, err := g.fetchTSL(ctx, deviceID)
	if err != nil {
		return nil, g.wrap("get tsl", err)
	}
	if d, err := g.registry.Get(deviceID); err == nil {
		d.SetTSL(m)
	}
	return m, nil
}

func (g *Gateway) fetchTSL(ctx context.Context, deviceID string) (*tsl.Model, error) {
	req := protocol.NewRequest(protocol.MethodTSLGet, deviceID)
	msg, err := g.request(ctx, req, g.timeouts.TSL)
	if err != nil {
		return nil, err
	}
	if failed(msg) {
		return nil, fmt.Errorf("%w: code %d", ErrRequestRejected, msg.Code)
	}
	return decodeTSL(msg)
}

// GetDeviceProperties reads properties from a device. names may be empty to
// read whatever the device reports; when the device's TSL is known an empty
// list expands to its readable properties.
//
// The gateway does not echo the request id on property replies, so the read
// completes on the next property report for the device that carries any of
// names. A second read of the same device displaces the first, which fails
// with ErrWaiterSuperseded.
func (g *Gateway) GetDeviceProperties(ctx context.Context, deviceID string, names []string) (protocol.Properties, error) {
	if len(names) == 0 {
		if d, err := g.registry.Get(deviceID); err == nil {
			names = d.TSL().GettableProperties()
		}
	}

	req := protocol.NewRequest(protocol.MethodPropertyGet, deviceID)
	if len(names) > 0 {
		req.Params = names
	}

	w := g.corr.expectDevice(deviceID, names)
	if err := g.send(req); err != nil {
		g.corr.cancel(w)
		return nil, g.wrap("get properties", err)
	}
	res, err := g.corr.wait(ctx, w, g.timeouts.PropertyGet)
	if err != nil {
		return nil, g.wrap("get properties", err)
	}
	return res.props, nil
}

// SetDeviceProperties writes property values through the device's set
// service. When the TSL is known, every property must exist and must not
// be read-only.
func (g *Gateway) SetDeviceProperties(ctx context.Context, deviceID string, values map[string]any) error {
	if len(values) == 0 {
		return g.wrap("set properties", errors.New("no properties given"))
	}
	if d, err := g.registry.Get(deviceID); err == nil {
		if m := d.TSL(); m != nil {
			for name := range values {
				spec, ok := m.PropertySpec(name)
				if !ok || (spec.AccessMode != "" && !spec.AccessMode.CanWrite()) {
					return g.wrap("set properties", fmt.Errorf("%w: property %s", ErrUnsupported, name))
				}
			}
		}
	}

	if _, err := g.invoke(ctx, deviceID, tsl.ServiceSet, values); err != nil {
		return g.wrap("set properties", err)
	}
	return nil
}

// InvokeService calls a device service and returns the reply data, which may
// be nil.
func (g *Gateway) InvokeService(ctx context.Context, deviceID, identifier string, params map[string]any) (json.RawMessage, error) {
	data, err := g.invoke(ctx, deviceID, identifier, params)
	if err != nil {
		return nil, g.wrap("invoke "+identifier, err)
	}
	return data, nil
}

// IdentifyDevice makes the device signal its location (blink, beep). When
// the TSL is known it must declare the identify service.
func (g *Gateway) IdentifyDevice(ctx context.Context, deviceID string) error {
	if d, err := g.registry.Get(deviceID); err == nil {
		if m := d.TSL(); m != nil && !m.SupportsIdentify() {
			return g.wrap("identify", fmt.Errorf("%w: service %s", ErrUnsupported, tsl.ServiceIdentify))
		}
	}
	if _, err := g.invoke(ctx, deviceID, tsl.ServiceIdentify, nil); err != nil {
		return g.wrap("identify", err)
	}
	return nil
}

func (g *Gateway) invoke(ctx context.Context, deviceID, identifier string, params map[string]any) (json.RawMessage, error) {
	req := protocol.NewRequest(protocol.MethodServiceInvoke, deviceID)
	req.Identifier = identifier
	if params != nil {
		req.Params = params
	}

	msg, err := g.request(ctx, req, g.timeouts.Service)
	if err != nil {
		return nil, err
	}
	if failed(msg) {
		g.logger.Warn("service invocation failed",
			"device_id", deviceID, "service", identifier, "code", msg.Code)
		return nil, fmt.Errorf("%w: %s code %d", ErrServiceInvocationFailed, identifier, msg.Code)
	}
	return rawOrNil(msg.Data), nil
}

// request sends req and waits for the reply echoing its id.
func (g *Gateway) request(ctx context.Context, req *protocol.Request, timeout time.Duration) (*protocol.Message, error) {
	w := g.corr.expect(req.ID)
	if err := g.send(req); err != nil {
		g.corr.cancel(w)
		return nil, err
	}
	res, err := g.corr.wait(ctx, w, timeout)
	if err != nil {
		return nil, err
	}
	return res.msg, nil
}
