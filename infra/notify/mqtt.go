// Package notify provides the MQTT-backed notification transport. Contact
// notifications are published per provider; accept/reject responses flow
// back on a shared response topic and are mapped onto engine operations.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/fieldserv/matchd/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker            string `json:"broker"`
	ClientID          string `json:"client_id"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	NotifyTopicPrefix string `json:"notify_topic_prefix"`
	ClientTopicPrefix string `json:"client_topic_prefix"`
	AdminTopic        string `json:"admin_topic"`
	ResponseTopic     string `json:"response_topic"`
	QoS               byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.NotifyTopicPrefix == "" {
		c.NotifyTopicPrefix = "match/providers"
	}
	if c.ClientTopicPrefix == "" {
		c.ClientTopicPrefix = "match/clients"
	}
	if c.AdminTopic == "" {
		c.AdminTopic = "match/admin"
	}
	if c.ResponseTopic == "" {
		c.ResponseTopic = "match/responses"
	}
}

// Responder maps provider responses onto engine operations.
type Responder interface {
	Accept(ctx context.Context, requestID, providerID string) error
	Reject(ctx context.Context, requestID, providerID string) error
}

// contactMessage is the payload published to a provider.
type contactMessage struct {
	RequestID string    `json:"request_id"`
	SentAt    time.Time `json:"sent_at"`
}

// responseMessage is the payload providers publish on the response topic.
type responseMessage struct {
	RequestID  string `json:"request_id"`
	ProviderID string `json:"provider_id"`
	Action     string `json:"action"` // "accept" or "reject"
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTDispatcher implements the notify.Dispatcher port over MQTT.
type MQTTDispatcher struct {
	cli pahoClient
	cfg Config
	log logger.Logger
}

// NewMQTTDispatcher connects to the broker.
func NewMQTTDispatcher(cfg Config) (*MQTTDispatcher, error) {
	cfg.SetDefaults()
	log := logger.New("mqtt-notify")
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTDispatcher{cli: c, cfg: cfg, log: log}, nil
}

// NotifyProvider publishes a contact notification to the provider's topic.
func (d *MQTTDispatcher) NotifyProvider(ctx context.Context, providerID, requestID string) error {
	payload, err := json.Marshal(contactMessage{RequestID: requestID, SentAt: time.Now()})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s/requests", d.cfg.NotifyTopicPrefix, providerID)
	return d.publish(ctx, topic, payload)
}

// NotifyClient publishes a request lifecycle event for the client.
func (d *MQTTDispatcher) NotifyClient(ctx context.Context, requestID, event string) error {
	payload, err := json.Marshal(map[string]string{"request_id": requestID, "event": event})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s", d.cfg.ClientTopicPrefix, requestID)
	return d.publish(ctx, topic, payload)
}

// NotifyAdmin publishes an escalation to the admin topic.
func (d *MQTTDispatcher) NotifyAdmin(ctx context.Context, requestID, reason string) error {
	payload, err := json.Marshal(map[string]string{"request_id": requestID, "reason": reason})
	if err != nil {
		return err
	}
	return d.publish(ctx, d.cfg.AdminTopic, payload)
}

func (d *MQTTDispatcher) publish(ctx context.Context, topic string, payload []byte) error {
	token := d.cli.Publish(topic, d.cfg.QoS, false, payload)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeResponses routes provider accept/reject messages to the engine.
// Conflicts are expected (a provider answering too late) and only logged.
func (d *MQTTDispatcher) SubscribeResponses(ctx context.Context, r Responder) error {
	handler := func(_ paho.Client, msg paho.Message) {
		var resp responseMessage
		if err := json.Unmarshal(msg.Payload(), &resp); err != nil {
			d.log.Warnf("malformed response on %s: %v", msg.Topic(), err)
			return
		}
		var err error
		switch resp.Action {
		case "accept":
			err = r.Accept(ctx, resp.RequestID, resp.ProviderID)
		case "reject":
			err = r.Reject(ctx, resp.RequestID, resp.ProviderID)
		default:
			d.log.Warnf("unknown response action %q from %s", resp.Action, resp.ProviderID)
			return
		}
		if err != nil {
			d.log.Warnf("response %s from %s for %s not applied: %v", resp.Action, resp.ProviderID, resp.RequestID, err)
		}
	}
	if token := d.cli.Subscribe(d.cfg.ResponseTopic, d.cfg.QoS, handler); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Close disconnects from the broker.
func (d *MQTTDispatcher) Close() {
	d.cli.Disconnect(250)
}
