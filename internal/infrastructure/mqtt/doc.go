// Package mqtt is the transport for the Azoula gateway protocol.
//
// The gateway runs its own MQTT broker. This package manages one connection
// to it:
//   - Connect with a caller-chosen client id, bounded by a 10 second CONNACK wait
//   - Classification of connect failures (timeout, authentication, network, other)
//   - Auto-reconnect after the first successful connect, restoring subscriptions
//   - Ordered delivery of inbound messages to handlers, with panic recovery
//
// # State machine
//
//	Disconnected --Connect--> Connecting --CONNACK ok--> Connected
//	     ^                        |                          |
//	     +------ failure ---------+---- connection lost -----+
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	topics := mqtt.Topics{}
//	_ = client.Subscribe(topics.Notify(gwID), 1, handleFrame)
//	if err := client.Connect(ctx, clientID); err != nil {
//	    if errors.Is(err, mqtt.ErrAuthenticationFailed) { ... }
//	}
//	defer client.Close()
//
//	client.Publish(topics.Command(gwID), payload, 1, false)
package mqtt
