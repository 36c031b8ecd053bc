// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stinger-ipc/stinger-mqtt/storage"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default values.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 1883
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultReconnectMin   = 1 * time.Second
	DefaultReconnectMax   = 2 * time.Minute
	DefaultClientIDPrefix = "stinger-"
)

// Options configures the client.
type Options struct {
	// Connection
	Host           string        // Broker host
	Port           int           // Broker port
	ClientID       string        // Client identifier (generated when empty)
	Username       string        // Optional username
	Password       string        // Optional password
	KeepAlive      time.Duration // Keep-alive interval (0 to disable)
	ConnectTimeout time.Duration // Timeout for one connection attempt

	// Session
	CleanStart    bool   // Discard any session state on the broker
	SessionExpiry uint32 // Session expiry interval (MQTT 5.0, seconds)

	// Reconnection
	AutoReconnect    bool          // Reconnect after a connection loss
	ReconnectBackoff time.Duration // Initial reconnect delay
	MaxReconnectWait time.Duration // Maximum reconnect delay

	// Shutdown
	WillOnClose bool // Close asks the broker to publish the offline will

	// Callbacks
	OnConnect        func(sessionPresent bool) // Called after the on-connect flush
	OnConnectionLost func(error)               // Called when an established connection is lost

	// Observability
	Logger         *slog.Logger         // Diagnostics sink (nil = slog.Default)
	LogLevel       slog.Level           // Initial minimum level, see Client.SetLogLevel
	MeterProvider  metric.MeterProvider // Metrics provider (nil = otel global)
	TracerProvider trace.TracerProvider // Tracer provider (nil = otel global)

	// Advanced
	Store storage.QueueStore // Durable offline queue (nil = memory only)
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		Host:             DefaultHost,
		Port:             DefaultPort,
		KeepAlive:        DefaultKeepAlive,
		ConnectTimeout:   DefaultConnectTimeout,
		CleanStart:       true,
		AutoReconnect:    true,
		ReconnectBackoff: DefaultReconnectMin,
		MaxReconnectWait: DefaultReconnectMax,
		LogLevel:         slog.LevelInfo,
	}
}

// SetServer sets the broker address.
func (o *Options) SetServer(host string, port int) *Options {
	o.Host = host
	o.Port = port
	return o
}

// SetClientID sets the client identifier.
func (o *Options) SetClientID(id string) *Options {
	o.ClientID = id
	return o
}

// SetCredentials sets username and password.
func (o *Options) SetCredentials(username, password string) *Options {
	o.Username = username
	o.Password = password
	return o
}

// SetKeepAlive sets the keep-alive interval.
func (o *Options) SetKeepAlive(d time.Duration) *Options {
	o.KeepAlive = d
	return o
}

// SetConnectTimeout sets the connection timeout.
func (o *Options) SetConnectTimeout(d time.Duration) *Options {
	o.ConnectTimeout = d
	return o
}

// SetCleanStart sets the clean start flag.
func (o *Options) SetCleanStart(clean bool) *Options {
	o.CleanStart = clean
	return o
}

// SetSessionExpiry sets the session expiry interval in seconds (MQTT 5.0).
// 0 means the session expires when the network connection closes.
func (o *Options) SetSessionExpiry(seconds uint32) *Options {
	o.SessionExpiry = seconds
	return o
}

// SetAutoReconnect enables or disables automatic reconnection.
func (o *Options) SetAutoReconnect(enable bool) *Options {
	o.AutoReconnect = enable
	return o
}

// SetReconnectBackoff sets the initial and maximum reconnect delays.
func (o *Options) SetReconnectBackoff(initial, max time.Duration) *Options {
	o.ReconnectBackoff = initial
	o.MaxReconnectWait = max
	return o
}

// SetWillOnClose makes Close disconnect with reason 0x04 so the broker
// publishes the offline status on graceful shutdown too.
func (o *Options) SetWillOnClose(enable bool) *Options {
	o.WillOnClose = enable
	return o
}

// SetOnConnect sets the connection callback.
func (o *Options) SetOnConnect(fn func(sessionPresent bool)) *Options {
	o.OnConnect = fn
	return o
}

// SetOnConnectionLost sets the connection lost callback.
func (o *Options) SetOnConnectionLost(fn func(error)) *Options {
	o.OnConnectionLost = fn
	return o
}

// SetLogger sets the diagnostics logger and its initial minimum level.
func (o *Options) SetLogger(logger *slog.Logger, level slog.Level) *Options {
	o.Logger = logger
	o.LogLevel = level
	return o
}

// SetMeterProvider sets the OpenTelemetry meter provider.
func (o *Options) SetMeterProvider(mp metric.MeterProvider) *Options {
	o.MeterProvider = mp
	return o
}

// SetTracerProvider sets the OpenTelemetry tracer provider.
func (o *Options) SetTracerProvider(tp trace.TracerProvider) *Options {
	o.TracerProvider = tp
	return o
}

// SetStore sets the durable offline queue store.
func (o *Options) SetStore(store storage.QueueStore) *Options {
	o.Store = store
	return o
}

// Validate checks the options for errors and fills in derived defaults.
func (o *Options) Validate() error {
	if o.Host == "" {
		return ErrNoServer
	}
	if o.Port <= 0 || o.Port > 65535 {
		return ErrInvalidPort
	}
	if o.KeepAlive < 0 || o.ConnectTimeout < 0 || o.ReconnectBackoff < 0 || o.MaxReconnectWait < 0 {
		return ErrInvalidDuration
	}
	if o.ClientID == "" {
		o.ClientID = DefaultClientIDPrefix + uuid.NewString()
	}
	if o.ReconnectBackoff == 0 {
		o.ReconnectBackoff = DefaultReconnectMin
	}
	if o.MaxReconnectWait < o.ReconnectBackoff {
		o.MaxReconnectWait = o.ReconnectBackoff
	}
	return nil
}
