package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

// DefaultBufferSize holds a little over a day of records at five minute intervals.
const DefaultBufferSize = 300

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int
	Logger     zerolog.Logger
	// OnStatus, if set, is called on every connect and connection loss.
	OnStatus func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topic  string
	log    zerolog.Logger

	mu  sync.Mutex
	out *outbox
}

// NewRealPublisher creates a publisher for the given broker. A broker that is
// unreachable at startup is not fatal; the client keeps retrying in the
// background and messages are buffered meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "greenhouse-sensor"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topic: Topic,
		log:   o.Logger,
		out:   newOutbox(o.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, false).
		SetOnConnectHandler(func(c paho.Client) {
			p.log.Info().Str("broker", o.Broker).Msg("mqtt connected")
			if o.OnStatus != nil {
				o.OnStatus(true)
			}
			p.flush(c)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("mqtt connection lost")
			if o.OnStatus != nil {
				o.OnStatus(false)
			}
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn().Str("broker", o.Broker).Msg("mqtt broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// flush replays held messages in order. The first failure puts the rest back.
func (p *RealPublisher) flush(c paho.Client) {
	p.mu.Lock()
	msgs, dropped := p.out.take()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	p.log.Info().Int("count", len(msgs)).Int("dropped", dropped).Msg("replaying held mqtt messages")
	for i, m := range msgs {
		if err := send(c, m); err != nil {
			p.log.Warn().Err(err).Int("remaining", len(msgs)-i).Msg("replay interrupted")
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.out.add(rest)
			}
			p.mu.Unlock()
			return
		}
	}
}

func send(c paho.Client, m message) error {
	token := c.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	return token.Error()
}

// publish sends m when connected and holds it in the outbox otherwise.
func (p *RealPublisher) publish(m message) error {
	if p.client.IsConnectionOpen() {
		err := send(p.client, m)
		if err == nil {
			return nil
		}
		p.log.Debug().Err(err).Msg("publish failed, holding")
	}

	p.mu.Lock()
	first := p.out.add(m)
	p.mu.Unlock()
	if first {
		p.log.Warn().Int("capacity", p.out.max).Msg("mqtt outbox full, discarding oldest")
	}
	return nil
}

// Publish sends a persisted record at QoS 0.
func (p *RealPublisher) Publish(rec sensor.Record) error {
	payload, err := FormatPayload(rec)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(message{topic: p.topic, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(message{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Held returns the number of messages waiting for a connection.
func (p *RealPublisher) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.size()
}

func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects, allowing a second for in-flight messages.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
