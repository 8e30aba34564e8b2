// internal/telemetry/sinks.go
package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/ColonelBlimp/wklink/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LogSink writes events through the structured logger. Key and status events
// are logged at debug level.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.Default()
	}
	return &LogSink{logger: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Handle(ev Event) error {
	switch ev.Kind {
	case KindSpeed:
		s.logger.Info("speed", "wpm", ev.WPM)
	case KindEcho:
		s.logger.Info("echo", "char", ev.Char, "morse", ev.Pattern)
	case KindKey:
		s.logger.Debug("key", "contact", ev.Contact, "edge", ev.Edge)
	case KindStatus:
		s.logger.Debug("status", "status", ev.Status)
	case KindState:
		s.logger.Info("session state", "state", ev.State)
	case KindFault:
		s.logger.Error("session fault", "error", ev.Err)
	case KindWarning:
		s.logger.Warn("warning", "error", ev.Err)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

// Client is the part of an MQTT client the sink needs. mqtt.Client satisfies it.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	// Broker URL, e.g. tcp://localhost:1883
	Broker string
	// Topic prefix; events go to <Topic>/<kind>
	Topic    string
	ClientID string
	// Timeout bounds connecting and each publish
	Timeout time.Duration
}

var (
	// ErrBrokerRequired indicates an MQTT sink was configured without a broker
	ErrBrokerRequired = errors.New("mqtt broker is required")
	// ErrPublishTimeout indicates the broker did not acknowledge in time
	ErrPublishTimeout = errors.New("mqtt publish timeout")
)

// MQTTSink publishes events as JSON, QoS 0. Speed and state are retained so a
// late subscriber sees the current value.
type MQTTSink struct {
	client  Client
	prefix  string
	timeout time.Duration
	logger  logger.Logger

	closeOnce sync.Once
}

// DialMQTT connects to the broker and returns a sink publishing to it.
func DialMQTT(cfg MQTTConfig, log logger.Logger) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, ErrBrokerRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	log = log.With("broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return NewMQTTSink(client, cfg.Topic, cfg.Timeout, log), nil
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client Client, prefix string, timeout time.Duration, log logger.Logger) *MQTTSink {
	if log == nil {
		log = logger.Default()
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "wklink"
	}
	return &MQTTSink{client: client, prefix: prefix, timeout: timeout, logger: log}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic events of kind are published to.
func (s *MQTTSink) Topic(kind Kind) string {
	return s.prefix + "/" + string(kind)
}

func (s *MQTTSink) Handle(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	retained := ev.Kind == KindSpeed || ev.Kind == KindState
	token := s.client.Publish(s.Topic(ev.Kind), 0, retained, payload)
	if s.timeout > 0 && !token.WaitTimeout(s.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker, giving in-flight publishes 250ms.
func (s *MQTTSink) Close() {
	s.closeOnce.Do(func() {
		s.client.Disconnect(250)
		s.logger.Debug("mqtt disconnected")
	})
}
