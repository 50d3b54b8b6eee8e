package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultClientID prefixes the generated MQTT client id.
const DefaultClientID = "pbxbridge"

// disconnectQuiesce is how long Disconnect waits for in-flight work, in ms.
const disconnectQuiesce = 250

type pahoSub struct {
	qos     byte
	handler MessageHandler
}

// PahoBroker is a [Broker] backed by an Eclipse Paho MQTT client.
//
// It reconnects automatically and replays every active subscription each
// time the connection is (re)established.
type PahoBroker struct {
	client mqtt.Client
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]pahoSub
}

// NewPahoBroker creates a broker client for url, e.g. "tcp://localhost:1883".
// A random suffix is appended to clientID so several bridges can share a
// broker. The client is not connected until [PahoBroker.Connect].
func NewPahoBroker(url, clientID string, logger *slog.Logger) *PahoBroker {
	if logger == nil {
		logger = slog.Default()
	}
	if clientID == "" {
		clientID = DefaultClientID
	}
	b := &PahoBroker{
		url:    url,
		logger: logger.With("broker", url),
		subs:   make(map[string]pahoSub),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(url)
	opts.SetClientID(clientID + "-" + uuid.NewString()[:8])
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(b.onConnectionLost)

	b.client = mqtt.NewClient(opts)
	return b
}

// Connect dials the broker and waits until the connection is up or ctx ends.
func (b *PahoBroker) Connect(ctx context.Context) error {
	b.logger.Info("connecting to MQTT broker")
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to MQTT broker %s: %w", b.url, err)
	}
	return nil
}

// Subscribe records the subscription and, when connected, applies it.
func (b *PahoBroker) Subscribe(topic string, qos byte, handler MessageHandler) error {
	b.mu.Lock()
	b.subs[topic] = pahoSub{qos: qos, handler: handler}
	b.mu.Unlock()

	if !b.client.IsConnectionOpen() {
		// applied by onConnect
		return nil
	}
	token := b.client.Subscribe(topic, qos, wrap(handler))
	token.Wait()
	return token.Error()
}

// Unsubscribe forgets the subscription and removes it from the broker.
func (b *PahoBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.subs, topic)
	b.mu.Unlock()

	if !b.client.IsConnectionOpen() {
		return nil
	}
	token := b.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// Disconnect closes the connection and stops reconnecting. It also aborts a
// connect attempt still in flight after [PahoBroker.Connect] gave up on ctx.
func (b *PahoBroker) Disconnect() {
	b.client.Disconnect(disconnectQuiesce)
	b.logger.Info("MQTT broker disconnected")
}

func (b *PahoBroker) onConnect(client mqtt.Client) {
	b.mu.Lock()
	subs := make(map[string]pahoSub, len(b.subs))
	for topic, s := range b.subs {
		subs[topic] = s
	}
	b.mu.Unlock()

	b.logger.Info("connected to MQTT broker", "subscriptions", len(subs))
	for topic, s := range subs {
		token := client.Subscribe(topic, s.qos, wrap(s.handler))
		if token.Wait() && token.Error() != nil {
			b.logger.Warn("resubscribe failed", "topic", topic, "error", token.Error().Error())
		}
	}
}

func (b *PahoBroker) onConnectionLost(_ mqtt.Client, err error) {
	b.logger.Warn("MQTT connection lost, reconnecting", "error", err.Error())
}

func wrap(h MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}
