package mqtt

import "fmt"

// Default topic prefixes used by Azoula gateway firmware.
//
// The gateway listens for requests on {gateway prefix}/{gateway id} and
// publishes replies and notifications on {platform-app prefix}/{gateway id}.
const (
	// DefaultGatewayPrefix is the base for topics the gateway consumes.
	DefaultGatewayPrefix = "meribee/gateway"

	// DefaultPlatformAppPrefix is the base for topics the gateway produces.
	DefaultPlatformAppPrefix = "meribee/platform-app"
)

// Topics provides builders for gateway MQTT topics.
// Empty prefixes fall back to the firmware defaults:
//
//	topics := mqtt.Topics{}
//	topics.Command("6A242121110E")
//	// Returns: "meribee/gateway/6A242121110E"
type Topics struct {
	GatewayPrefix     string
	PlatformAppPrefix string
}

// Command returns the topic requests are published to.
//
// Example: meribee/gateway/6A242121110E
func (t Topics) Command(gatewayID string) string {
	return fmt.Sprintf("%s/%s", orDefault(t.GatewayPrefix, DefaultGatewayPrefix), gatewayID)
}

// Notify returns the topic replies and unsolicited notifications arrive on.
//
// Example: meribee/platform-app/6A242121110E
func (t Topics) Notify(gatewayID string) string {
	return fmt.Sprintf("%s/%s", orDefault(t.PlatformAppPrefix, DefaultPlatformAppPrefix), gatewayID)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
