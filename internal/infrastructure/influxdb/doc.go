// Package influxdb records gateway telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2 with a batched, non-blocking write API.
// Three measurements are written:
//
//   - device_property: one point per numeric property reading, tagged by
//     gateway_id, device_id and property
//   - device_online: gateway and device connectivity changes
//   - device_event: device events, with numeric parameters as fields
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteProperties(gatewayID, deviceID, props)
//
// Write failures are delivered asynchronously through SetOnError.
package influxdb
