package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken completes when done is closed.
type fakeToken struct {
	mqtt.Token
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeConn records publishes. Methods not overridden panic through the nil embedded interface.
type fakeConn struct {
	mqtt.Client
	mu           sync.Mutex
	token        func() mqtt.Token
	published    []published
	connected    bool
	disconnected bool
}

func (c *fakeConn) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	c.mu.Unlock()
	if c.token != nil {
		return c.token()
	}
	return completedToken(nil)
}

func (c *fakeConn) IsConnected() bool { return c.connected }

func (c *fakeConn) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}
