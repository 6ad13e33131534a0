// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry publishes controller status over MQTT.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/drift_controller/internal/control"
)

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Connect opens an MQTT session. Handlers run concurrently so one that
// publishes a reply cannot stall the router.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("telemetry: mqtt connection lost: %v", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.Printf("telemetry: connected to MQTT broker at %s", broker)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}

// MQTTPublisher publishes QoS 0 messages through a paho client.
type MQTTPublisher struct {
	client   mqtt.Client
	retained bool
	timeout  time.Duration
}

// NewMQTTPublisher wraps client. Status documents are published retained so
// a new subscriber sees the latest one at once; commands and replies are not,
// since a stale one must never be replayed.
func NewMQTTPublisher(client mqtt.Client, retained bool) *MQTTPublisher {
	return &MQTTPublisher{client: client, retained: retained, timeout: time.Second}
}

// Publish sends payload and waits for the client to hand it off.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// StatusSource provides status without counting as an operator command.
type StatusSource interface {
	Snapshot() control.Status
}

// Report is the JSON document published on the status topic.
type Report struct {
	Timestamp      time.Time `json:"timestamp"`
	SensorLink     string    `json:"sensor_link"`
	LastSampleAgeS float64   `json:"last_sample_age_s"`
	control.Status
}

// NewReport stamps s with now.
func NewReport(s control.Status, now time.Time) Report {
	age := -1.0
	if s.HaveSample {
		age = s.LastSampleAge.Seconds()
	}
	return Report{
		Timestamp:      now,
		SensorLink:     s.SensorLink(),
		LastSampleAgeS: age,
		Status:         s,
	}
}

// Reporter publishes a Report on a fixed interval.
type Reporter struct {
	src      StatusSource
	pub      Publisher
	topic    string
	interval time.Duration
	now      func() time.Time
}

// NewReporter returns a reporter publishing src on topic every interval.
func NewReporter(src StatusSource, pub Publisher, topic string, interval time.Duration) (*Reporter, error) {
	if src == nil || pub == nil {
		return nil, errors.New("telemetry: source and publisher are required")
	}
	if topic == "" {
		return nil, errors.New("telemetry: topic is required")
	}
	if interval <= 0 {
		return nil, errors.New("telemetry: interval must be positive")
	}
	return &Reporter{src: src, pub: pub, topic: topic, interval: interval, now: time.Now}, nil
}

// PublishOnce publishes the current status.
func (r *Reporter) PublishOnce() error {
	payload, err := json.Marshal(NewReport(r.src.Snapshot(), r.now()))
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return r.pub.Publish(r.topic, payload)
}

// Run publishes until ctx is done. Publish errors are logged and skipped.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Printf("telemetry: publishing status on %s every %v", r.topic, r.interval)

	var failures int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := r.PublishOnce(); err != nil {
			failures++
			if failures == 1 || failures%100 == 0 {
				log.Printf("telemetry: %v (%d failures)", err, failures)
			}
			continue
		}
		failures = 0
	}
}
