package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize bounds outgoing frames. Gateway commands are small JSON
// documents; anything near this size is a caller bug.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgment
// the QoS level calls for. It fails with ErrNotConnected rather than
// queueing while the link is down.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	pc, ok := c.current()
	if !ok {
		return ErrNotConnected
	}
	return await(pc.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await blocks on a paho token for at most defaultPublishTimeout and
// wraps any failure in sentinel.
func await(token pahomqtt.Token, sentinel error) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: no acknowledgment within %v", sentinel, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
