package mqtt

import (
	"fmt"
)

// Subscribe routes messages on topic to handler.
//
// The subscription is remembered and re-applied on every (re)connect, so it
// may be registered before Connect. While connected it is also sent to the
// broker at once; if the broker refuses it the subscription is forgotten
// again and the error returned.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	pc, ok := c.current()
	if !ok {
		return nil
	}
	if err := await(pc.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe forgets topic and, when connected, tells the broker.
// Messages already in flight may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	c.forget(topic)

	pc, ok := c.current()
	if !ok {
		return nil
	}
	return await(pc.Unsubscribe(topic), ErrUnsubscribeFailed)
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
