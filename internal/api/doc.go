// Package api serves the gateway over HTTP and WebSocket.
//
// REST endpoints under /api/v1 expose discovery, device listing, property
// reads and writes, service invocation and identify. Gateway errors map to
// HTTP statuses: unknown device 404, unsupported operation 422, gateway
// timeout 504, no connection 503, rejected by the gateway 502. Control
// actions are written to the audit log when one is configured.
//
// The WebSocket hub relays gateway events to clients that subscribe to
// one or more channels:
//
//	{"type":"subscribe","id":"1","channels":["device.property_update"]}
//
// and are answered with an ack listing their current channels. Events
// arrive as {"type":"event","channel":...,"time":...,"data":{...}}.
//
// Channels are gateway.online_status, device.online_status,
// device.property_update and device.event; "*" subscribes to all.
package api
