// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to a config key to override it from the environment,
// e.g. DRIFT_HEADING_KP=1.5.
const EnvPrefix = "DRIFT_"

// Config holds all application configuration values.
type Config struct {
	// Serial channels
	MovementPort   string // movement controller (Nucleo), "auto" to detect
	SensorPort     string // sensor + collector controller (ESP32), "auto" to detect
	MovementUSBVID string // USB vendor ID used when MovementPort is "auto"
	SensorUSBVID   string // USB vendor ID used when SensorPort is "auto"
	BaudRate       int

	// Wire formats
	SensorFrameFormat string // "block" or "nmea"
	CollectorEncoding string // "word" or "legacy"

	// Control loop
	ControlRateHz        int
	HeadingKp            float64
	FilterAlpha          float64
	StaticAccelThreshold float64 // m/s², planar accel below which gyro is treated as pure drift
	ZeroBand             float64 // rad/s, |omega| at or below this locks heading
	WatchdogTimeout      time.Duration
	MaxLinearSpeed       float64 // m/s
	MaxRotationRate      float64 // rad/s
	SensorReconnect      time.Duration

	// Command transports
	UDPListenAddr  string
	HTTPListenAddr string

	// MQTT
	MQTTBroker     string
	MQTTClientID   string
	TopicStatus    string
	TopicCommand   string
	TopicReply     string
	StatusInterval time.Duration

	// Emergency stop
	EStopPin       string // empty disables the kill switch
	EStopActiveLow bool

	// Logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it without locking.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration populated with the values the robot ships with.
func Default() *Config {
	return &Config{
		MovementPort:         "/dev/ttyACM0",
		SensorPort:           "/dev/ttyUSB0",
		MovementUSBVID:       "0483",
		SensorUSBVID:         "10c4",
		BaudRate:             115200,
		SensorFrameFormat:    "block",
		CollectorEncoding:    "word",
		ControlRateHz:        50,
		HeadingKp:            2.0,
		FilterAlpha:          0.98,
		StaticAccelThreshold: 0.5,
		ZeroBand:             0.01,
		WatchdogTimeout:      time.Second,
		MaxLinearSpeed:       1.0,
		MaxRotationRate:      1.0,
		SensorReconnect:      time.Second,
		UDPListenAddr:        "0.0.0.0:5005",
		HTTPListenAddr:       ":8080",
		MQTTClientID:         "drift-controller",
		TopicStatus:          "robot/status",
		TopicCommand:         "robot/command",
		TopicReply:           "robot/command/reply",
		StatusInterval:       200 * time.Millisecond,
		EStopActiveLow:       true,
		LogMaxSizeMB:         10,
		LogMaxBackups:        3,
		LogMaxAgeDays:        14,
	}
}

// Load reads the configuration file on top of Default() and applies any
// DRIFT_<KEY> environment overrides.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		values[strings.TrimPrefix(key, EnvPrefix)] = value
	}
	return FromValues(values)
}

// FromValues builds a Config from KEY=VALUE pairs on top of Default().
func FromValues(values map[string]string) (*Config, error) {
	cfg := Default()

	// deterministic order so the first bad key is always the one reported
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(values[key])); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Serial channels
	case "MOVEMENT_PORT":
		c.MovementPort = value
	case "SENSOR_PORT":
		c.SensorPort = value
	case "MOVEMENT_USB_VID":
		c.MovementUSBVID = strings.ToLower(value)
	case "SENSOR_USB_VID":
		c.SensorUSBVID = strings.ToLower(value)
	case "BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BAUD_RATE %q: %w", value, err)
		}
		c.BaudRate = rate

	// Wire formats
	case "SENSOR_FRAME_FORMAT":
		switch value {
		case "block", "nmea":
			c.SensorFrameFormat = value
		default:
			return fmt.Errorf("SENSOR_FRAME_FORMAT must be block or nmea, got %q", value)
		}
	case "COLLECTOR_ENCODING":
		switch value {
		case "word", "legacy":
			c.CollectorEncoding = value
		default:
			return fmt.Errorf("COLLECTOR_ENCODING must be word or legacy, got %q", value)
		}

	// Control loop
	case "CONTROL_RATE_HZ":
		hz, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONTROL_RATE_HZ %q: %w", value, err)
		}
		if hz < 20 || hz > 50 {
			return fmt.Errorf("CONTROL_RATE_HZ must be 20-50, got %d", hz)
		}
		c.ControlRateHz = hz
	case "HEADING_KP":
		kp, err := parseNonNegative(key, value)
		if err != nil {
			return err
		}
		c.HeadingKp = kp
	case "FILTER_ALPHA":
		alpha, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_ALPHA %q: %w", value, err)
		}
		if alpha < 0 || alpha >= 1 {
			return fmt.Errorf("FILTER_ALPHA must be in [0,1), got %g", alpha)
		}
		c.FilterAlpha = alpha
	case "STATIC_ACCEL_THRESHOLD":
		v, err := parseNonNegative(key, value)
		if err != nil {
			return err
		}
		c.StaticAccelThreshold = v
	case "ZERO_BAND":
		v, err := parseNonNegative(key, value)
		if err != nil {
			return err
		}
		c.ZeroBand = v
	case "WATCHDOG_TIMEOUT_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.WatchdogTimeout = d
	case "MAX_LINEAR_SPEED":
		v, err := parseNonNegative(key, value)
		if err != nil {
			return err
		}
		c.MaxLinearSpeed = v
	case "MAX_ROTATION_RATE":
		v, err := parseNonNegative(key, value)
		if err != nil {
			return err
		}
		c.MaxRotationRate = v
	case "SENSOR_RECONNECT_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.SensorReconnect = d

	// Command transports
	case "UDP_LISTEN_ADDR":
		c.UDPListenAddr = value
	case "HTTP_LISTEN_ADDR":
		c.HTTPListenAddr = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value
	case "TOPIC_REPLY":
		c.TopicReply = value
	case "STATUS_INTERVAL_MS":
		d, err := parseMillis(key, value)
		if err != nil {
			return err
		}
		c.StatusInterval = d

	// Emergency stop
	case "ESTOP_PIN":
		c.EStopPin = value
	case "ESTOP_ACTIVE_LOW":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid ESTOP_ACTIVE_LOW %q: %w", value, err)
		}
		c.EStopActiveLow = b

	// Logging
	case "LOG_FILE":
		c.LogFile = value
	case "LOG_MAX_SIZE_MB":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_MAX_SIZE_MB %q: %w", value, err)
		}
		c.LogMaxSizeMB = n
	case "LOG_MAX_BACKUPS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_MAX_BACKUPS %q: %w", value, err)
		}
		c.LogMaxBackups = n
	case "LOG_MAX_AGE_DAYS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_MAX_AGE_DAYS %q: %w", value, err)
		}
		c.LogMaxAgeDays = n

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseNonNegative(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %g", key, v)
	}
	return v, nil
}

func parseMillis(key, value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MovementPort == "" {
		return fmt.Errorf("MOVEMENT_PORT is required")
	}
	if c.SensorPort == "" {
		return fmt.Errorf("SENSOR_PORT is required")
	}
	if c.MovementPort != "auto" && c.MovementPort == c.SensorPort {
		return fmt.Errorf("MOVEMENT_PORT and SENSOR_PORT must differ, both are %q", c.MovementPort)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("BAUD_RATE is required")
	}
	if c.MQTTBroker != "" && c.MQTTClientID == "" {
		return fmt.Errorf("MQTT_CLIENT_ID is required when MQTT_BROKER is set")
	}
	return nil
}

// ControlPeriod is the interval between two control loop ticks.
func (c *Config) ControlPeriod() time.Duration {
	return time.Second / time.Duration(c.ControlRateHz)
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
