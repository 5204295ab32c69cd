// Package gateway is the protocol client for an Azoula (Sunricher) Zigbee
// gateway reached over MQTT.
//
// It turns the gateway's publish/subscribe channel into blocking calls with
// timeouts:
//
//	gw, err := gateway.New(gateway.Options{Gateway: cfg.Gateway, MQTT: cfg.MQTT, Timeouts: cfg.Timeouts})
//	if err != nil {
//	    return err
//	}
//	defer gw.Close()
//
//	if err := gw.Connect(ctx); err != nil {
//	    return err
//	}
//	devices, err := gw.DiscoverDevices(ctx, true)
//
// Replies that echo a request id (TSL fetch, service invocation) are matched
// by id. Property reads are matched by device id because the gateway answers
// them with an ordinary property report.
//
// Unsolicited frames (property reports, device events, online/offline) are
// queued and delivered to listeners on a dispatcher goroutine, so a slow
// listener never stalls the MQTT connection.
package gateway
