// Package mqtt publishes the state of a Comap housing to an MQTT broker.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clambin/comap-monitor/internal/poller"
	"github.com/clambin/comap-monitor/pkg/comap"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const defaultTimeout = 5 * time.Second

// Client publishes a message to the broker. paho.Client implements this interface.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

// Connect connects to the broker. The client reconnects automatically if the connection is lost.
func Connect(broker, clientID string, timeout time.Duration) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect: timeout connecting to %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

// Publisher publishes every zone's state, and the state of the housing, as retained JSON messages.
// Topics are <prefix>/<housingID>/zones/<zoneID> and <prefix>/<housingID>/housing.
// A message is only published when its content has changed.
type Publisher struct {
	Poller  poller.Poller
	Client  Client
	Prefix  string
	Timeout time.Duration
	Logger  *slog.Logger

	lock      sync.Mutex
	published map[string][]byte
}

func (p *Publisher) Run(ctx context.Context) error {
	p.Logger.Debug("started")
	defer p.Logger.Debug("stopped")

	ch := p.Poller.Subscribe()
	defer p.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			if err := p.publish(update); err != nil {
				p.Logger.Warn("failed to publish update", slog.Any("err", err))
			}
		}
	}
}

type housingState struct {
	HeatingSystemState comap.HeatingSystemState `json:"heating_system_state,omitempty"`
	Holiday            bool                     `json:"holiday"`
	Absence            bool                     `json:"absence"`
	Events             []string                 `json:"events"`
	Program            string                   `json:"program,omitempty"`
}

func (p *Publisher) publish(update poller.Update) error {
	var errs []error
	for _, zone := range update.SortedZones() {
		errs = append(errs, p.send(p.Prefix+"/"+update.HousingID+"/zones/"+zone.ZoneID, zone))
	}

	housing := housingState{
		HeatingSystemState: update.ThermalDetails.HeatingSystemState,
		Holiday:            update.ThermalDetails.Events.Holiday(),
		Absence:            update.ThermalDetails.Events.Absence(),
		Events:             update.ThermalDetails.Events.Active(),
	}
	if program, ok := update.ActiveProgram(); ok {
		housing.Program = program.Title
	}
	errs = append(errs, p.send(p.Prefix+"/"+update.HousingID+"/housing", housing))
	return errors.Join(errs...)
}

func (p *Publisher) send(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", topic, err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if bytes.Equal(p.published[topic], data) {
		return nil
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	token := p.Client.Publish(topic, 1, true, data)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%s: publish timed out", topic)
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}

	if p.published == nil {
		p.published = make(map[string][]byte)
	}
	p.published[topic] = data
	p.Logger.Debug("published", slog.String("topic", topic))
	return nil
}
