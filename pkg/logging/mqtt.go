// Copyright 2018 Ewout Prangsma
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

package logging

import (
	"context"
	"io"
	"sync"
)

// Publisher sends a payload to an MQTT topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTWriter is a log output that forwards log lines to MQTT.
// Lines written before a destination is known are kept in a bounded
// queue and sent once SetDestination is called.
type MQTTWriter interface {
	io.Writer
	SetDestination(topic string, publisher Publisher)
}

type mqttLogger struct {
	queue   chan []byte
	changed chan struct{}

	mutex     sync.Mutex
	topic     string
	publisher Publisher
}

const (
	mqttQueueSize = 512
)

// NewMQTTWriter creates a new MQTT output for logs.
// The MQTT sender is closed when the given context is canceled.
func NewMQTTWriter(ctx context.Context) MQTTWriter {
	l := &mqttLogger{
		queue:   make(chan []byte, mqttQueueSize),
		changed: make(chan struct{}, 1),
	}
	go l.run(ctx)
	return l
}

// Write queues the log line. When the queue is full, the oldest
// line is dropped. Writes never block.
func (l *mqttLogger) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// zerolog reuses its buffer
	msg := append([]byte(nil), p...)
	select {
	case l.queue <- msg:
		return len(p), nil
	default:
	}
	select {
	case <-l.queue:
		logLinesDroppedTotal.Inc()
	default:
	}
	select {
	case l.queue <- msg:
	default:
		// Lost the race with another writer
		logLinesDroppedTotal.Inc()
	}
	return len(p), nil
}

// SetDestination sets the topic and publisher used for all queued
// and future lines. A nil publisher pauses forwarding.
func (l *mqttLogger) SetDestination(topic string, publisher Publisher) {
	l.mutex.Lock()
	l.topic = topic
	l.publisher = publisher
	l.mutex.Unlock()

	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *mqttLogger) destination() (string, Publisher) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.topic, l.publisher
}

func (l *mqttLogger) run(ctx context.Context) {
	for {
		topic, publisher := l.destination()
		if topic == "" || publisher == nil {
			select {
			case <-l.changed:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case msg := <-l.queue:
			if err := publisher.Publish(topic, msg); err != nil {
				// Cannot log this; it would loop back here
				logPublishErrorsTotal.Inc()
			}
		case <-l.changed:
			// Pick up new destination
		case <-ctx.Done():
			return
		}
	}
}
