// Command azoula talks to an Azoula/Sunricher smart gateway over MQTT.
//
// It discovers the gateway's sub-devices, reads and writes their
// properties, invokes services, and can run as a long-lived service that
// exposes the gateway over HTTP and WebSocket while recording state to
// SQLite and InfluxDB.
//
// Usage:
//
//	azoula --config configs/config.yaml check
//	azoula discover --tsl --save
//	azoula get <device> OnOff CurrentLevel
//	azoula set <device> OnOff=1 CurrentLevel=128
//	azoula serve
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
