// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/drift_controller/internal/config"
	"github.com/relabs-tech/drift_controller/internal/gateway"
	"github.com/relabs-tech/drift_controller/internal/telemetry"
)

// newControlMux serves the operator WebSocket, the live status and the
// static files in ./web.
func newControlMux(gw *gateway.Gateway, src telemetry.StatusSource) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/control", gw.HandleControlWS)
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(telemetry.NewReport(src.Snapshot(), time.Now())); err != nil {
			log.Printf("http: json encode error: %v", err)
		}
	})
	mux.Handle("/", http.FileServer(http.Dir("web")))
	return mux
}

// statusCache keeps the last status document seen on MQTT.
type statusCache struct {
	mu      sync.RWMutex
	payload []byte
}

func (c *statusCache) store(_ mqtt.Client, msg mqtt.Message) {
	if !json.Valid(msg.Payload()) {
		log.Printf("web: ignoring malformed status on %s", msg.Topic())
		return
	}
	c.mu.Lock()
	c.payload = append([]byte(nil), msg.Payload()...)
	c.mu.Unlock()
}

func (c *statusCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.payload == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(c.payload)
}

// RunWeb serves a read-only dashboard fed by the controller's MQTT status
// topic, for use on a machine other than the robot.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	if cfg.MQTTBroker == "" {
		return errors.New("MQTT_BROKER is required for the web dashboard")
	}

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientID+"-web")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	cache := &statusCache{}
	token := client.Subscribe(cfg.TopicStatus, 0, cache.store)
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicStatus)

	mux := http.NewServeMux()
	mux.Handle("/api/status", cache)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	log.Printf("web: server listening on %s", cfg.HTTPListenAddr)
	return http.ListenAndServe(cfg.HTTPListenAddr, mux)
}
