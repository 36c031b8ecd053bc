// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/stinger-ipc/stinger-mqtt/client"
	"gopkg.in/yaml.v3"
)

// Protocol versions accepted by BrokerConfig.Protocol.
const (
	ProtocolV5   = "5"
	ProtocolV311 = "3.1.1"
)

// Config holds all configuration for an MQTT client process.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Session   SessionConfig   `yaml:"session"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Queue     QueueConfig     `yaml:"queue"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BrokerConfig holds broker connection settings.
type BrokerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Protocol       string        `yaml:"protocol"` // "5" or "3.1.1"
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PacketTimeout  time.Duration `yaml:"packet_timeout"`
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig holds TLS settings for the broker connection.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"` // client certificate for mutual TLS
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// SessionConfig holds MQTT session settings.
type SessionConfig struct {
	// Empty generates an identifier.
	ClientID string `yaml:"client_id"`

	KeepAlive  time.Duration `yaml:"keep_alive"`
	CleanStart bool          `yaml:"clean_start"`

	// Seconds the broker keeps the session after disconnect.
	ExpiryInterval uint32 `yaml:"expiry_interval"`

	// Send the offline status on graceful close too.
	WillOnClose bool `yaml:"will_on_close"`
}

// ReconnectConfig holds automatic reconnect settings.
type ReconnectConfig struct {
	Enabled         bool          `yaml:"enabled"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// QueueConfig holds the offline publish queue backend.
type QueueConfig struct {
	Type      string `yaml:"type"` // memory, badger
	BadgerDir string `yaml:"badger_dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SlogLevel maps Level to a slog level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Endpoint        string        `yaml:"endpoint"` // OTLP gRPC collector address
	Insecure        bool          `yaml:"insecure"`
	ServiceName     string        `yaml:"service_name"`
	ServiceVersion  string        `yaml:"service_version"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	TracesEnabled   bool          `yaml:"traces_enabled"`
	TraceSampleRate float64       `yaml:"trace_sample_rate"` // 0.0 to 1.0
	ExportInterval  time.Duration `yaml:"export_interval"`
}

// Enabled reports whether any signal is exported.
func (t TelemetryConfig) Enabled() bool {
	return t.MetricsEnabled || t.TracesEnabled
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:           client.DefaultHost,
			Port:           client.DefaultPort,
			Protocol:       ProtocolV5,
			ConnectTimeout: client.DefaultConnectTimeout,
			PacketTimeout:  30 * time.Second,
		},
		Session: SessionConfig{
			KeepAlive:  client.DefaultKeepAlive,
			CleanStart: true,
		},
		Reconnect: ReconnectConfig{
			Enabled:         true,
			InitialInterval: client.DefaultReconnectMin,
			MaxInterval:     client.DefaultReconnectMax,
		},
		Queue: QueueConfig{
			Type:      "memory",
			BadgerDir: "/tmp/stinger-mqtt/queue",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Endpoint:        "localhost:4317",
			Insecure:        true,
			ServiceName:     "stinger-mqtt-client",
			ServiceVersion:  "1.0.0",
			MetricsEnabled:  false,
			TracesEnabled:   false,
			TraceSampleRate: 0.1,
			ExportInterval:  10 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker.host cannot be empty")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port must be between 1 and 65535")
	}
	if c.Broker.Protocol != ProtocolV5 && c.Broker.Protocol != ProtocolV311 {
		return fmt.Errorf("broker.protocol must be one of: %s, %s", ProtocolV5, ProtocolV311)
	}
	if c.Broker.ConnectTimeout < 0 {
		return fmt.Errorf("broker.connect_timeout cannot be negative")
	}
	if c.Broker.PacketTimeout < 0 {
		return fmt.Errorf("broker.packet_timeout cannot be negative")
	}
	if c.Broker.TLS.Enabled && (c.Broker.TLS.CertFile == "") != (c.Broker.TLS.KeyFile == "") {
		return fmt.Errorf("broker.tls.cert_file and broker.tls.key_file must be set together")
	}

	if c.Session.KeepAlive < 0 {
		return fmt.Errorf("session.keep_alive cannot be negative")
	}
	if c.Session.ExpiryInterval > 0 && c.Broker.Protocol == ProtocolV311 {
		return fmt.Errorf("session.expiry_interval requires protocol %s", ProtocolV5)
	}

	if c.Reconnect.Enabled {
		if c.Reconnect.InitialInterval <= 0 {
			return fmt.Errorf("reconnect.initial_interval must be positive")
		}
		if c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
			return fmt.Errorf("reconnect.max_interval must be at least reconnect.initial_interval")
		}
	}

	validQueues := map[string]bool{"memory": true, "badger": true}
	if !validQueues[c.Queue.Type] {
		return fmt.Errorf("queue.type must be one of: memory, badger")
	}
	if c.Queue.Type == "badger" && c.Queue.BadgerDir == "" {
		return fmt.Errorf("queue.badger_dir required when type is badger")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	// Telemetry validation (only if enabled)
	if c.Telemetry.Enabled() {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.TraceSampleRate < 0.0 || c.Telemetry.TraceSampleRate > 1.0 {
			return fmt.Errorf("telemetry.trace_sample_rate must be between 0.0 and 1.0")
		}
		if c.Telemetry.MetricsEnabled && c.Telemetry.ExportInterval < time.Second {
			return fmt.Errorf("telemetry.export_interval must be at least 1 second")
		}
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ClientOptions builds client options from the broker, session and
// reconnect sections. Logger, store, telemetry providers and callbacks are
// left for the caller.
func (c *Config) ClientOptions() *client.Options {
	opts := client.NewOptions().
		SetServer(c.Broker.Host, c.Broker.Port).
		SetCredentials(c.Broker.Username, c.Broker.Password).
		SetConnectTimeout(c.Broker.ConnectTimeout).
		SetKeepAlive(c.Session.KeepAlive).
		SetCleanStart(c.Session.CleanStart).
		SetSessionExpiry(c.Session.ExpiryInterval).
		SetWillOnClose(c.Session.WillOnClose).
		SetAutoReconnect(c.Reconnect.Enabled).
		SetReconnectBackoff(c.Reconnect.InitialInterval, c.Reconnect.MaxInterval)
	if c.Session.ClientID != "" {
		opts.SetClientID(c.Session.ClientID)
	}
	return opts
}

// TLSConfig builds the broker TLS configuration. It returns nil when TLS is
// disabled.
func (b BrokerConfig) TLSConfig() (*tls.Config, error) {
	if !b.TLS.Enabled {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         b.TLS.ServerName,
		InsecureSkipVerify: b.TLS.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
	}
	if cfg.ServerName == "" {
		cfg.ServerName = b.Host
	}

	if b.TLS.CAFile != "" {
		pem, err := os.ReadFile(b.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", b.TLS.CAFile)
		}
		cfg.RootCAs = pool
	}

	if b.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(b.TLS.CertFile, b.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
