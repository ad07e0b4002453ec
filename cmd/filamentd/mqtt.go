package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ============================================================================
// MQTT light sink (Home Assistant JSON schema)
// ============================================================================
// On connect the sink publishes a retained discovery config and "online" on the
// availability topic, and subscribes to the command topic. Commands become
// SetTarget actions; the daemon publishes the resulting level back on the state
// topic through CmdPublishLight.
// ============================================================================

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMS      = 250
)

// lightTopics are the MQTT topics of one light entity.
type lightTopics struct {
	Config       string
	State        string
	Command      string
	Availability string
}

// entityID turns a display name into a Home Assistant object id.
func entityID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.ReplaceAll(id, " ", "_")
	if id == "" {
		return "filament"
	}
	return id
}

func newLightTopics(name string) lightTopics {
	id := entityID(name)
	return lightTopics{
		Config:       fmt.Sprintf("homeassistant/light/%s/config", id),
		State:        fmt.Sprintf("filament/light/%s/state", id),
		Command:      fmt.Sprintf("filament/light/%s/set", id),
		Availability: fmt.Sprintf("filament/light/%s/availability", id),
	}
}

// lightConfigJSON is the discovery payload.
type lightConfigJSON struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	CommandTopic      string `json:"command_topic"`
	StateTopic        string `json:"state_topic"`
	AvailabilityTopic string `json:"availability_topic"`
	Schema            string `json:"schema"`
	Brightness        bool   `json:"brightness"`
}

// lightStateJSON is used for both the state topic and the command topic.
type lightStateJSON struct {
	State      string `json:"state"`
	Brightness *int   `json:"brightness,omitempty"`
}

func lightConfigPayload(cfg MQTTConfig, topics lightTopics) ([]byte, error) {
	uid := cfg.UniqueID
	if uid == "" {
		uid = "filament_" + entityID(cfg.Name)
	}
	return json.Marshal(lightConfigJSON{
		Name:              cfg.Name,
		UniqueID:          uid,
		CommandTopic:      topics.Command,
		StateTopic:        topics.State,
		AvailabilityTopic: topics.Availability,
		Schema:            "json",
		Brightness:        true,
	})
}

func lightStatePayload(level int, on bool) ([]byte, error) {
	st := lightStateJSON{State: "OFF"}
	if on {
		st.State = "ON"
	}
	st.Brightness = &level
	return json.Marshal(st)
}

// decodeLightCommand turns a Home Assistant command into a SetTarget action.
// "ON" without a brightness means full brightness.
func decodeLightCommand(payload []byte) (SetTarget, error) {
	var cmd lightStateJSON
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return SetTarget{}, fmt.Errorf("decode light command: %w", err)
	}

	switch strings.ToUpper(cmd.State) {
	case "ON":
		target := 1.0
		if cmd.Brightness != nil {
			target = math.Max(0, math.Min(255, float64(*cmd.Brightness))) / 255
		}
		return SetTarget{Target: target, Origin: "mqtt"}, nil
	case "OFF":
		return SetTarget{Target: 0, Origin: "mqtt"}, nil
	default:
		return SetTarget{}, fmt.Errorf("decode light command: unknown state %q", cmd.State)
	}
}

// MQTTLight mirrors the daemon's output to a Home Assistant light.
type MQTTLight struct {
	client mqtt.Client
	cfg    MQTTConfig
	topics lightTopics
	events chan<- Event
	logger *slog.Logger
}

var errMQTTNotConnected = errors.New("mqtt not connected")

// NewMQTTLight configures the client. Call Connect to start it.
func NewMQTTLight(cfg MQTTConfig, events chan<- Event, logger *slog.Logger) *MQTTLight {
	l := &MQTTLight{
		cfg:    cfg,
		topics: newLightTopics(cfg.Name),
		events: events,
		logger: logger,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetWill(l.topics.Availability, payloadOffline, 0, true).
		SetOnConnectHandler(l.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", "error", err)
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			logger.Info("MQTT reconnecting", "broker", cfg.Broker)
		})

	l.client = mqtt.NewClient(opts)
	return l
}

// Connect dials the broker. With connect-retry enabled the token completes once
// the first attempt finished; later attempts continue in the background.
func (l *MQTTLight) Connect(ctx context.Context) error {
	t := l.client.Connect()
	select {
	case <-t.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttConnectTimeout):
		l.logger.Warn("MQTT broker not reachable yet, retrying in background", "broker", l.cfg.Broker)
		return nil
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", l.cfg.Broker, err)
	}
	return nil
}

func (l *MQTTLight) onConnect(c mqtt.Client) {
	l.logger.Info("MQTT connected", "broker", l.cfg.Broker)

	configJSON, err := lightConfigPayload(l.cfg, l.topics)
	if err != nil {
		l.logger.Error("marshal light configuration failed", "error", err)
		return
	}
	if t := c.Publish(l.topics.Config, 0, true, configJSON); t.Wait() && t.Error() != nil {
		l.logger.Error("MQTT discovery publish failed", "topic", l.topics.Config, "error", t.Error())
		return
	}
	if t := c.Publish(l.topics.Availability, 0, true, payloadOnline); t.Wait() && t.Error() != nil {
		l.logger.Warn("MQTT availability publish failed", "error", t.Error())
	}
	l.logger.Info("registered light with Home Assistant", "name", l.cfg.Name, "topic", l.topics.Config)

	if t := c.Subscribe(l.topics.Command, 0, l.onCommand); t.Wait() && t.Error() != nil {
		l.logger.Error("MQTT subscribe failed", "topic", l.topics.Command, "error", t.Error())
	}
}

func (l *MQTTLight) onCommand(_ mqtt.Client, msg mqtt.Message) {
	a, err := decodeLightCommand(msg.Payload())
	if err != nil {
		l.logger.Warn("ignoring light command", "topic", msg.Topic(), "error", err)
		return
	}
	l.logger.Debug("light command", "target", a.Target)

	select {
	case l.events <- a:
	default:
		l.logger.Warn("event queue full, dropping light command")
	}
}

// PublishLight publishes the lamp state. It does not wait for the broker; a
// failed delivery is logged and the next level change publishes again.
func (l *MQTTLight) PublishLight(level int, on bool) error {
	if !l.client.IsConnectionOpen() {
		return errMQTTNotConnected
	}
	payload, err := lightStatePayload(level, on)
	if err != nil {
		return fmt.Errorf("marshal light state: %w", err)
	}

	t := l.client.Publish(l.topics.State, 0, true, payload)
	go func() {
		if t.Wait() && t.Error() != nil {
			l.logger.Warn("MQTT state publish failed", "topic", l.topics.State, "error", t.Error())
		}
	}()
	return nil
}

// Close marks the light unavailable and disconnects.
func (l *MQTTLight) Close() {
	if l.client.IsConnectionOpen() {
		t := l.client.Publish(l.topics.Availability, 0, true, payloadOffline)
		t.WaitTimeout(time.Second)
	}
	l.client.Disconnect(mqttQuiesceMS)
}
