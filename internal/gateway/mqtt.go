// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gateway

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/drift_controller/internal/telemetry"
)

// MQTTHandler applies each message payload as a command and, when
// replyTopic is set, publishes the reply there.
func (g *Gateway) MQTTHandler(pub telemetry.Publisher, replyTopic string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		reply := g.Handle(string(msg.Payload()))
		if replyTopic == "" || pub == nil {
			return
		}
		if err := pub.Publish(replyTopic, []byte(reply)); err != nil {
			log.Printf("gateway: mqtt reply: %v", err)
		}
	}
}

// SubscribeMQTT routes commandTopic into the gateway.
func (g *Gateway) SubscribeMQTT(client mqtt.Client, commandTopic, replyTopic string) error {
	token := client.Subscribe(commandTopic, 0, g.MQTTHandler(telemetry.NewMQTTPublisher(client, false), replyTopic))
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", commandTopic, token.Error())
	}
	log.Printf("gateway: subscribed to %s", commandTopic)
	return nil
}
