package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColonelBlimp/wklink/internal/logger"
)

type collectSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *collectSink) Name() string { return "collect" }

func (c *collectSink) Handle(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *collectSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestHub_DeliversInOrder(t *testing.T) {
	hub := NewHub(16, logger.NewRecorder())
	sink := &collectSink{}
	hub.Subscribe(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	hub.Publish(Speed(20))
	hub.Publish(Echo("A", ".-"))
	hub.Publish(State("open"))
	hub.Close()

	got := sink.Events()
	require.Len(t, got, 3)
	assert.Equal(t, KindSpeed, got[0].Kind)
	assert.Equal(t, 20, got[0].WPM)
	assert.Equal(t, KindEcho, got[1].Kind)
	assert.Equal(t, KindState, got[2].Kind)
	assert.Equal(t, uint64(3), hub.Published())
}

func TestHub_DropsWhenFull(t *testing.T) {
	hub := NewHub(2, logger.NewRecorder())
	sink := &collectSink{}
	hub.Subscribe(sink)

	for i := 0; i < 5; i++ {
		hub.Publish(Speed(10 + i))
	}
	assert.Equal(t, uint64(2), hub.Published())
	assert.Equal(t, uint64(3), hub.Dropped())

	// Close without Run flushes inline
	hub.Close()
	assert.Len(t, sink.Events(), 2)

	hub.Publish(Speed(1))
	assert.Equal(t, uint64(2), hub.Published(), "publish after close is ignored")
	hub.Close()
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(8, logger.NewRecorder())
	a, b := &collectSink{}, &collectSink{}
	idA := hub.Subscribe(a)
	hub.Subscribe(b)
	assert.Equal(t, 2, hub.Sinks())

	hub.Unsubscribe(idA)
	hub.Unsubscribe(999)
	assert.Equal(t, 1, hub.Sinks())

	hub.Publish(Status("dit"))
	hub.Close()
	assert.Empty(t, a.Events())
	assert.Len(t, b.Events(), 1)
}

func TestHub_SinkErrorsAreCounted(t *testing.T) {
	hub := NewHub(8, logger.NewRecorder())
	hub.Subscribe(&collectSink{err: errors.New("boom")})
	hub.Publish(Speed(12))
	hub.Publish(Speed(13))
	hub.Close()
	assert.Equal(t, uint64(2), hub.Failed())
}

func TestHub_RunStopsOnContext(t *testing.T) {
	hub := NewHub(8, logger.NewRecorder())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	hub.Close()
}

func TestLogSink(t *testing.T) {
	rec := logger.NewRecorder()
	sink := NewLogSink(rec)

	require.NoError(t, sink.Handle(Speed(25)))
	require.NoError(t, sink.Handle(Echo("K", "-.-")))
	require.NoError(t, sink.Handle(Key("dit", "press", time.Now())))
	require.NoError(t, sink.Handle(Fault(errors.New("unplugged"))))
	assert.Error(t, sink.Handle(Event{Kind: "bogus"}))

	speed := rec.Find(logger.InfoLevel, "speed")
	require.Len(t, speed, 1)
	v, _ := speed[0].Value("wpm")
	assert.Equal(t, 25, v)

	echo := rec.Find(logger.InfoLevel, "echo")
	require.Len(t, echo, 1)
	v, _ = echo[0].Value("morse")
	assert.Equal(t, "-.-", v)

	assert.Len(t, rec.Find(logger.DebugLevel, "key"), 1)
	assert.Len(t, rec.Find(logger.ErrorLevel, "session fault"), 1)
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	token        *fakeToken
	disconnected int
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected++
}

func TestMQTTSink_PublishesJSON(t *testing.T) {
	client := &fakeClient{}
	sink := NewMQTTSink(client, "shack/wklink/", time.Second, logger.NewRecorder())

	require.NoError(t, sink.Handle(Speed(18)))
	require.NoError(t, sink.Handle(Echo("E", ".")))
	require.NoError(t, sink.Handle(State("open")))

	require.Len(t, client.messages, 3)
	assert.Equal(t, "shack/wklink/speed", client.messages[0].topic)
	assert.True(t, client.messages[0].retained)
	assert.Equal(t, byte(0), client.messages[0].qos)
	assert.False(t, client.messages[1].retained)
	assert.True(t, client.messages[2].retained)

	var ev Event
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &ev))
	assert.Equal(t, KindSpeed, ev.Kind)
	assert.Equal(t, 18, ev.WPM)
	assert.NotContains(t, string(client.messages[0].payload), `"char"`)

	sink.Close()
	sink.Close()
	assert.Equal(t, 1, client.disconnected)
}

func TestMQTTSink_Errors(t *testing.T) {
	client := &fakeClient{token: &fakeToken{timeout: true}}
	sink := NewMQTTSink(client, "", time.Millisecond, logger.NewRecorder())
	assert.Equal(t, "wklink/key", sink.Topic(KindKey))
	assert.ErrorIs(t, sink.Handle(Speed(10)), ErrPublishTimeout)

	cause := errors.New("not connected")
	client.token = &fakeToken{err: cause}
	assert.ErrorIs(t, sink.Handle(Speed(10)), cause)
}

func TestDialMQTT_RequiresBroker(t *testing.T) {
	_, err := DialMQTT(MQTTConfig{}, logger.NewRecorder())
	assert.ErrorIs(t, err, ErrBrokerRequired)
}

func TestEventString(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Speed(30), "speed 30 wpm"},
		{Key("dah", "release", time.Time{}), "key release(dah)"},
		{State("closed"), "state closed"},
		{Warning(errors.New("x")), "warning x"},
		{Fault(nil), "fault "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.String())
	}
}
