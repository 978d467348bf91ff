package mesh

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken implements mqtt.Token for tests.
type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *mockToken) Error() error { return t.err }

// recordedMessage is one message captured by the mock client.
type recordedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// mockMQTTClient implements mqtt.Client, recording published messages so
// publisher tests can assert on topics and payloads without a broker.
type mockMQTTClient struct {
	connected    bool
	publishError error
	published    []recordedMessage
	mu           sync.RWMutex
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{connected: true}
}

func (c *mockMQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *mockMQTTClient) setPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishError = err
}

func (c *mockMQTTClient) publishedMessages() []recordedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]recordedMessage, len(c.published))
	copy(out, c.published)
	return out
}

func (c *mockMQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *mockMQTTClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *mockMQTTClient) Connect() mqtt.Token {
	c.setConnected(true)
	return &mockToken{}
}

func (c *mockMQTTClient) Disconnect(quiesce uint) {
	c.setConnected(false)
}

func (c *mockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &mockToken{err: mqtt.ErrNotConnected}
	}
	if c.publishError != nil {
		return &mockToken{err: c.publishError}
	}
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	c.published = append(c.published, recordedMessage{
		Topic:   topic,
		Payload: data,
		QoS:     qos,
		Retain:  retained,
	})
	return &mockToken{}
}

func (c *mockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}

func (c *mockMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}

func (c *mockMQTTClient) Unsubscribe(topics ...string) mqtt.Token { return &mockToken{} }

func (c *mockMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (c *mockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}
