package mqttingress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fermentation_monitor/internal/logger"
	"fermentation_monitor/internal/service"
)

// TopicFilter matches every hydrometer's telemetry topic. The middle segment
// is the device id.
const TopicFilter = "hydrometer/+/telemetry"

const (
	connectTimeout = 10 * time.Second
	handleTimeout  = 30 * time.Second
	reconnectMax   = 30 * time.Second
	qosAtLeastOnce = 1
)

// Config holds the broker connection settings. An empty Broker disables the
// ingress entirely; HTTP posting keeps working without it.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// payload is the wire format floating hydrometers publish. Run attribution is
// optional; unattributed samples fall back to the active run.
type payload struct {
	RunID        string  `json:"run_id,omitempty"`
	TemperatureC float64 `json:"temperature"`
	Gravity      float64 `json:"gravity"`
	BatteryV     float64 `json:"battery"`
}

// Ingress subscribes to hydrometer telemetry and feeds it into the ingest
// pipeline, so MQTT samples take the exact same path as HTTP posts.
type Ingress struct {
	cfg    Config
	ingest service.Ingest
	log    *logger.Logger
	client mqtt.Client
}

func New(cfg Config, ingest service.Ingest, log *logger.Logger) *Ingress {
	if cfg.ClientID == "" {
		cfg.ClientID = "fermentation-monitor"
	}
	return &Ingress{cfg: cfg, ingest: ingest, log: log}
}

// Enabled reports whether a broker is configured.
func (i *Ingress) Enabled() bool { return i.cfg.Broker != "" }

// Start connects and subscribes. The paho client reconnects on its own; the
// subscription is re-established from the OnConnect handler so it survives
// broker restarts.
func (i *Ingress) Start() error {
	if !i.Enabled() {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(i.cfg.Broker).
		SetClientID(i.cfg.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectMax).
		SetConnectTimeout(connectTimeout)
	if i.cfg.Username != "" {
		opts.SetUsername(i.cfg.Username)
	}
	if i.cfg.Password != "" {
		opts.SetPassword(i.cfg.Password)
	}
	opts.SetOnConnectHandler(i.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		i.log.Warnw("mqtt connection lost", "err", err)
	})

	i.client = mqtt.NewClient(opts)
	token := i.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout to %s", i.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (i *Ingress) onConnect(client mqtt.Client) {
	if token := client.Subscribe(TopicFilter, qosAtLeastOnce, i.handleMessage); token.Wait() && token.Error() != nil {
		i.log.Errorw("mqtt subscribe failed", "topic", TopicFilter, "err", token.Error())
		return
	}
	i.log.Infow("mqtt ingress subscribed", "topic", TopicFilter)
}

func (i *Ingress) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	device, ok := deviceFromTopic(msg.Topic())
	if !ok {
		i.log.Warnw("mqtt message on unexpected topic", "topic", msg.Topic())
		return
	}

	in, err := parsePayload(msg.Payload())
	if err != nil {
		i.log.Warnw("mqtt payload rejected", "device", device, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := i.ingest.PostHydrometer(ctx, in); err != nil {
		i.log.Errorw("mqtt hydrometer ingest failed", "device", device, "err", err)
		return
	}
	i.log.Debugw("mqtt hydrometer sample stored", "device", device, "gravity", in.Gravity)
}

// Stop disconnects from the broker, letting in-flight publishes drain briefly.
func (i *Ingress) Stop() {
	if i.client == nil {
		return
	}
	i.client.Disconnect(250)
	i.log.Infow("mqtt ingress stopped")
}

// deviceFromTopic extracts the device id from hydrometer/<id>/telemetry.
func deviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "hydrometer" || parts[2] != "telemetry" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// parsePayload validates the JSON body into an ingest input. Gravity is the
// one field a hydrometer must report.
func parsePayload(raw []byte) (service.HydrometerInput, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return service.HydrometerInput{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.Gravity <= 0 {
		return service.HydrometerInput{}, fmt.Errorf("gravity must be positive, got %v", p.Gravity)
	}
	return service.HydrometerInput{
		RunID:        p.RunID,
		TemperatureC: p.TemperatureC,
		Gravity:      p.Gravity,
		BatteryV:     p.BatteryV,
	}, nil
}
