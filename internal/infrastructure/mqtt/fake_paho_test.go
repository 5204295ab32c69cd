package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a pahomqtt.Token. Connect tokens stay pending until the
// test calls release.
type fakeToken struct {
	ready chan struct{}
	done  chan struct{}
	err   error
	code  byte

	releaseOnce  sync.Once
	completeOnce sync.Once
}

func pendingToken(err error, code byte) *fakeToken {
	return &fakeToken{ready: make(chan struct{}), done: make(chan struct{}), err: err, code: code}
}

func doneToken(err error, code byte) *fakeToken {
	t := pendingToken(err, code)
	t.release()
	t.complete()
	return t
}

func (t *fakeToken) release()  { t.releaseOnce.Do(func() { close(t.ready) }) }
func (t *fakeToken) complete() { t.completeOnce.Do(func() { close(t.done) }) }

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }
func (t *fakeToken) ReturnCode() byte      { return t.code }

type fakePublish struct {
	topic   string
	qos     byte
	payload []byte
}

// fakePaho is an in-memory pahomqtt.Client.
type fakePaho struct {
	opts *pahomqtt.ClientOptions

	// connectToken is returned by Connect. A nil token succeeds immediately.
	connectToken *fakeToken

	mu          sync.Mutex
	open        bool
	subscribed  map[string]pahomqtt.MessageHandler
	subOrder    []string
	published   []fakePublish
	disconnects int
}

func (f *fakePaho) IsConnected() bool { return f.IsConnectionOpen() }

func (f *fakePaho) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakePaho) Connect() pahomqtt.Token {
	tok := f.connectToken
	if tok == nil {
		tok = pendingToken(nil, 0)
		tok.release()
	}
	go func() {
		<-tok.ready
		if tok.err == nil {
			f.mu.Lock()
			f.open = true
			f.mu.Unlock()
			if f.opts.OnConnect != nil {
				f.opts.OnConnect(f)
			}
		}
		tok.complete()
	}()
	return tok
}

// reconnect simulates paho's auto-reconnect completing.
func (f *fakePaho) reconnect() {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.opts.OnConnect(f)
}

// lose simulates an unsolicited connection loss.
func (f *fakePaho) lose(err error) {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.opts.OnConnectionLost(f, err)
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.open = false
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.published = append(f.published, fakePublish{topic: topic, qos: qos, payload: b})
	return doneToken(nil, 0)
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribed == nil {
		f.subscribed = make(map[string]pahomqtt.MessageHandler)
	}
	f.subscribed[topic] = cb
	f.subOrder = append(f.subOrder, topic)
	return doneToken(nil, 0)
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, cb)
	}
	return doneToken(nil, 0)
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.subscribed, topic)
	}
	return doneToken(nil, 0)
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver simulates an inbound message on topic.
func (f *fakePaho) deliver(topic string, payload []byte) {
	f.mu.Lock()
	cb := f.subscribed[topic]
	f.mu.Unlock()
	if cb != nil {
		cb(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) subscribeCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.subOrder {
		if t == topic {
			n++
		}
	}
	return n
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeFactory hands out fakePaho clients and records them in creation order.
type fakeFactory struct {
	mu      sync.Mutex
	tokens  []*fakeToken
	clients []*fakePaho
}

func (ff *fakeFactory) newClient(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f := &fakePaho{opts: opts}
	if len(ff.tokens) > 0 {
		f.connectToken = ff.tokens[0]
		ff.tokens = ff.tokens[1:]
	}
	ff.clients = append(ff.clients, f)
	return f
}

func (ff *fakeFactory) last() *fakePaho {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.clients[len(ff.clients)-1]
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Info(string, ...any) {}
