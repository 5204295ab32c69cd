package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish or subscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// CONNACK return codes the classifier cares about (MQTT 3.1.1 section 3.2.2.3).
const (
	connackBadCredentials byte = 0x04
	connackNotAuthorised  byte = 0x05

	// connackNetworkError is paho's synthetic code for a failed dial.
	connackNetworkError byte = 0xFE
)

// buildClientOptions creates paho MQTT options for one connect attempt.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - The per-attempt client id
//   - Authentication credentials (if provided)
//   - Auto-reconnect after the first successful connect (no retry of the first attempt)
//   - Ordered, serial handler delivery
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	// The first attempt reports its own failure to the caller.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(cfg.Reconnect.Enabled)
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Frames must reach the protocol layer in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// returnCoder is implemented by paho's ConnectToken.
type returnCoder interface {
	ReturnCode() byte
}

// classifyConnectError maps a completed connect token onto the package's
// connection error sentinels. It returns nil on success.
func classifyConnectError(token pahomqtt.Token) error {
	err := token.Error()
	if err == nil {
		return nil
	}

	if rc, ok := token.(returnCoder); ok {
		switch rc.ReturnCode() {
		case connackBadCredentials, connackNotAuthorised:
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		case connackNetworkError:
			return fmt.Errorf("%w: %w", ErrNetwork, err)
		}
	}

	if isNetworkError(err) {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
