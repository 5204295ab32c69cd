package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

// Measurement names.
const (
	MeasurementProperty = "device_property"
	MeasurementOnline   = "device_online"
	MeasurementEvent    = "device_event"
)

// Gateway timestamps above this are milliseconds, below are seconds.
const millisecondThreshold = 1_000_000_000_000

// WriteProperties records one point per numeric property. Non-numeric
// values are skipped. It returns the number of points written.
//
// The gateway's own reading time is used when present.
func (c *Client) WriteProperties(gatewayID, deviceID string, props protocol.Properties) int {
	if !c.IsConnected() {
		return 0
	}

	written := 0
	for _, name := range props.Names() {
		pv := props[name]
		value, ok := pv.Float()
		if !ok {
			continue
		}
		fields := map[string]any{"value": value}
		if pv.ChangeByUser != 0 {
			fields["change_by_user"] = pv.ChangeByUser
		}
		c.writeAPI.WritePoint(write.NewPoint(
			MeasurementProperty,
			map[string]string{
				"gateway_id": gatewayID,
				"device_id":  deviceID,
				"property":   name,
			},
			fields,
			c.timestamp(pv.Time),
		))
		written++
	}
	return written
}

// WriteOnlineStatus records a connectivity change. An empty deviceID
// denotes the gateway link itself.
func (c *Client) WriteOnlineStatus(gatewayID, deviceID string, online bool) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"gateway_id": gatewayID}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementOnline,
		tags,
		map[string]any{"online": online},
		c.now(),
	))
}

// WriteDeviceEvent records a device event. Numeric parameters become
// fields; an event with none still records a count of one.
func (c *Client) WriteDeviceEvent(gatewayID, deviceID, identifier string, params map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]any{"count": 1}
	for key, raw := range params {
		if v, ok := (protocol.PropertyValue{Value: raw}).Float(); ok {
			fields[key] = v
		}
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementEvent,
		map[string]string{
			"gateway_id": gatewayID,
			"device_id":  deviceID,
			"event":      identifier,
		},
		fields,
		c.now(),
	))
}

// WritePoint writes a raw point at the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

// WritePointWithTime writes a raw point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func (c *Client) timestamp(t int64) time.Time {
	switch {
	case t <= 0:
		return c.now()
	case t >= millisecondThreshold:
		return time.UnixMilli(t)
	default:
		return time.Unix(t, 0)
	}
}
