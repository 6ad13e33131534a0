// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/drift_controller/internal/config"
	"github.com/relabs-tech/drift_controller/internal/telemetry"
)

// statusLine is the subset of a status report the console prints.
type statusLine struct {
	State      string  `json:"state"`
	Heading    float64 `json:"heading"`
	DriftRate  float64 `json:"drift_rate"`
	SensorLink string  `json:"sensor_link"`
	AgeS       float64 `json:"last_sample_age_s"`
	Output     struct {
		VX    float64 `json:"vx"`
		VY    float64 `json:"vy"`
		Omega float64 `json:"omega"`
	} `json:"output"`
}

func formatStatusLine(payload []byte) (string, error) {
	var s statusLine
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", err
	}
	return fmt.Sprintf("[STAT] %-14s HDG=%7.3f DRIFT=%7.4f OUT=(%5.2f,%5.2f,%6.3f) LINK=%s AGE=%.3fs",
		s.State, s.Heading, s.DriftRate, s.Output.VX, s.Output.VY, s.Output.Omega, s.SensorLink, s.AgeS), nil
}

// RunConsoleMQTT prints controller status and command replies, and sends
// every line typed on stdin as a command.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	if cfg.MQTTBroker == "" {
		return errors.New("MQTT_BROKER is required for the console")
	}

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientID+"-console")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		line, err := formatStatusLine(msg.Payload())
		if err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}
		fmt.Println(line)
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	if cfg.TopicReply != "" {
		replyToken := client.Subscribe(cfg.TopicReply, 0, func(_ mqtt.Client, msg mqtt.Message) {
			fmt.Printf("[RPLY] %s\n", msg.Payload())
		})
		replyToken.Wait()
		if replyToken.Error() != nil {
			return replyToken.Error()
		}
		log.Printf("console: subscribed to %s", cfg.TopicReply)
	}

	pub := telemetry.NewMQTTPublisher(client, false)
	go func() {
		if err := sendLines(os.Stdin, func(cmd string) error {
			return pub.Publish(cfg.TopicCommand, []byte(cmd))
		}); err != nil {
			log.Printf("console: %v", err)
		}
	}()

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	return nil
}

// sendLines calls send for every non-blank line of in.
func sendLines(in io.Reader, send func(string) error) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		cmd := strings.TrimSpace(sc.Text())
		if cmd == "" {
			continue
		}
		if err := send(cmd); err != nil {
			return err
		}
	}
	return sc.Err()
}
