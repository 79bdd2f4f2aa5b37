package connector_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"tftrader/internal/connector"
	"tftrader/models"

	"github.com/sirupsen/logrus"
)

type fakeStream struct {
	mu     sync.Mutex
	out    chan []byte
	resync chan struct{}
	topics []string
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		out:    make(chan []byte, 64),
		resync: make(chan struct{}, 1),
	}
}

func (s *fakeStream) Start(ctx context.Context) {}
func (s *fakeStream) Stop()                     {}

func (s *fakeStream) Subscribe(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topics...)
}

func (s *fakeStream) Out() <-chan []byte      { return s.out }
func (s *fakeStream) Resync() <-chan struct{} { return s.resync }

func (s *fakeStream) State() models.ConnectionState {
	return models.ConnectionState{Status: models.TransportConnected}
}

func (s *fakeStream) push(frame string) {
	s.out <- []byte(frame)
}

func (s *fakeStream) triggerResync() {
	s.resync <- struct{}{}
}

type call struct {
	method string
	path   string
	query  url.Values
}

// fakeClient routes requests by method+path to scripted responses.
type fakeClient struct {
	mu        sync.Mutex
	responses map[string][]func() ([]byte, error)
	calls     []call
	ts        int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{responses: make(map[string][]func() ([]byte, error))}
}

func (c *fakeClient) on(method, path string, resp func() ([]byte, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := method + " " + path
	c.responses[key] = append(c.responses[key], resp)
}

func (c *fakeClient) Send(ctx context.Context, method string, u *url.URL, body []byte, useApiKey bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, call{method: method, path: u.Path, query: u.Query()})

	key := method + " " + u.Path
	queue := c.responses[key]
	if len(queue) == 0 {
		panic("unexpected call: " + key)
	}

	resp := queue[0]
	if len(queue) > 1 {
		c.responses[key] = queue[1:]
	}

	return resp()
}

func (c *fakeClient) Timestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts++
	return c.ts
}

func (c *fakeClient) callsFor(method, path string) []call {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []call
	for _, call := range c.calls {
		if call.method == method && call.path == path {
			out = append(out, call)
		}
	}
	return out
}

type fakeCrypto struct{}

func (fakeCrypto) GetSignature(string) string { return "deadbeef" }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func recvEvent(t *testing.T, ch <-chan connector.Event) connector.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return connector.Event{}
	}
}
