// Copyright 2024 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/binkynet/PWMWorker/pkg/service"
)

const (
	mqttPublishTimeout = time.Millisecond * 200
	mqttCommandTimeout = time.Second * 2
)

// Config for the MQTT command handler.
type Config struct {
	// Broker address (host:port)
	Broker   string
	ClientID string
	// Prefix of all topics, ending with '/'
	TopicPrefix string
}

// Handler applies commands received over MQTT to the service and
// publishes the resulting state.
type Handler struct {
	Config
	log     zerolog.Logger
	service service.Service

	mutex  sync.Mutex
	ctx    context.Context
	client mqttapi.Client
}

// NewHandler creates a new MQTT command handler.
func NewHandler(cfg Config, log zerolog.Logger, svc service.Service) *Handler {
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/") + "/"
	return &Handler{
		Config:  cfg,
		log:     log.With().Str("component", "mqtt").Str("broker", cfg.Broker).Logger(),
		service: svc,
	}
}

// Run connects to the broker and handles commands until the given context is canceled.
func (h *Handler) Run(ctx context.Context) error {
	// Prepare MQTT client options
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + h.Broker).
		SetClientID(h.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	opts.SetConnectionLostHandler(func(c mqttapi.Client, err error) {
		mqttConnectedGauge.WithLabelValues(h.Broker).Set(0)
		h.log.Warn().Err(err).Msg("Lost MQTT connection")
	})
	topic := h.TopicPrefix + "#"
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		mqttConnectedGauge.WithLabelValues(h.Broker).Set(1)
		// (Re-)subscribe after every (re-)connect
		if token := c.Subscribe(topic, 0, h.onMessage); token.Wait() && token.Error() != nil {
			h.log.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe")
		}
	})

	h.mutex.Lock()
	h.ctx = ctx
	h.client = mqttapi.NewClient(opts)
	client := h.client
	h.mutex.Unlock()

	// Connect client
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt: %w", token.Error())
	}
	h.log.Info().Str("topic", topic).Msg("Handling MQTT commands")

	<-ctx.Done()

	client.Disconnect(250)
	mqttConnectedGauge.WithLabelValues(h.Broker).Set(0)
	return nil
}

// Receive messages
func (h *Handler) onMessage(client mqttapi.Client, msg mqttapi.Message) {
	cmd, err := parseCommand(h.TopicPrefix, msg.Topic(), string(msg.Payload()))
	if err != nil {
		mqttCommandErrorsTotal.WithLabelValues("parse").Inc()
		h.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Invalid MQTT command")
		return
	}
	if cmd == nil {
		// Not a command (e.g. our own state)
		return
	}
	h.mutex.Lock()
	parent := h.ctx
	h.mutex.Unlock()
	ctx, cancel := context.WithTimeout(parent, mqttCommandTimeout)
	defer cancel()

	mqttCommandsTotal.WithLabelValues(cmd.Kind.String()).Inc()
	stateTopic, state, err := h.apply(ctx, *cmd)
	if err != nil {
		mqttCommandErrorsTotal.WithLabelValues(cmd.Kind.String()).Inc()
		h.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Failed to apply MQTT command")
		return
	}
	h.publish(client, stateTopic, state)
}

// apply the given command and return the resulting state.
func (h *Handler) apply(ctx context.Context, cmd command) (string, interface{}, error) {
	switch cmd.Kind {
	case commandPulse:
		if err := h.service.SetPulseWidth(ctx, cmd.Channel, cmd.Microseconds); err != nil {
			return "", nil, err
		}
	case commandChannel:
		if err := h.service.SetChannel(ctx, cmd.Channel, cmd.On, cmd.Off); err != nil {
			return "", nil, err
		}
	case commandFrequency:
		if err := h.service.SetPWMFrequency(ctx, cmd.Hz); err != nil {
			return "", nil, err
		}
		f, err := h.service.GetPWMFrequency(ctx)
		if err != nil {
			return "", nil, err
		}
		return h.TopicPrefix + "frequency/state", f, nil
	default:
		return "", nil, fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
	ch, err := h.service.GetChannel(ctx, cmd.Channel)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%schannel%d/state", h.TopicPrefix, cmd.Channel), ch, nil
}

// Publish a raw payload to the given topic (not retained).
// Used to forward log lines.
func (h *Handler) Publish(topic string, payload []byte) error {
	h.mutex.Lock()
	client := h.client
	h.mutex.Unlock()
	if client == nil || !client.IsConnectionOpen() {
		return fmt.Errorf("not connected")
	}
	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("failed to publish to '%s' in time", topic)
	}
	return token.Error()
}

// publish a JSON encoded state message.
func (h *Handler) publish(client mqttapi.Client, topic string, state interface{}) {
	payload, err := json.Marshal(state)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode state")
		return
	}
	token := client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		h.log.Error().Err(token.Error()).
			Str("topic", topic).
			Msg("failed to deliver MQTT state in time")
	}
}
