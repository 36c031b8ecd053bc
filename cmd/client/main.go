// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stinger-ipc/stinger-mqtt/client"
	"github.com/stinger-ipc/stinger-mqtt/config"
	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/storage"
	"github.com/stinger-ipc/stinger-mqtt/storage/badger"
	"github.com/stinger-ipc/stinger-mqtt/storage/memory"
	"github.com/stinger-ipc/stinger-mqtt/telemetry"
	"github.com/stinger-ipc/stinger-mqtt/wire"
	"github.com/stinger-ipc/stinger-mqtt/wire/paho"
	"github.com/stinger-ipc/stinger-mqtt/wire/paho311"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	subTopic := flag.String("sub", "hello/world", "Topic filter to subscribe to")
	pubTopic := flag.String("pub", "hello/publish", "Topic to publish a signal to")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := cfg.Log.SlogLevel()
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if err := run(cfg, logger, logLevel, *subTopic, *pubTopic); err != nil {
		slog.Error("Client stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, level slog.Level, subTopic, pubTopic string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.ClientOptions().
		SetLogger(logger, level).
		SetOnConnect(func(sessionPresent bool) {
			slog.Info("Connected to broker", "session_present", sessionPresent)
		}).
		SetOnConnectionLost(func(err error) {
			slog.Warn("Connection lost", "error", err)
		})

	if err := opts.Validate(); err != nil {
		return err
	}

	provider, err := telemetry.InitProvider(ctx, cfg.Telemetry, opts.ClientID)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	opts.SetMeterProvider(provider.MeterProvider).SetTracerProvider(provider.TracerProvider)

	tlsConfig, err := cfg.Broker.TLSConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Queue)
	if err != nil {
		return err
	}
	opts.SetStore(store)

	var engine wire.Engine
	switch cfg.Broker.Protocol {
	case config.ProtocolV311:
		engine = paho311.New(paho311.Config{TLS: tlsConfig, Logger: logger})
	default:
		engine = paho.New(paho.Config{TLS: tlsConfig, PacketTimeout: cfg.Broker.PacketTimeout, Logger: logger})
	}

	c, err := client.New(engine, opts)
	if err != nil {
		return err
	}

	slog.Info("Starting MQTT client",
		"broker", cfg.Broker.Host,
		"port", cfg.Broker.Port,
		"protocol", cfg.Broker.Protocol,
		"client_id", c.ClientID(),
		"queue", cfg.Queue.Type)

	handle := c.AddMessageCallback(func(msg message.Message) {
		attrs := []any{"topic", msg.Topic, "payload", string(msg.Payload)}
		if msg.Properties.CorrelationData != nil {
			attrs = append(attrs, "correlation_bytes", len(msg.Properties.CorrelationData))
		}
		if msg.Properties.ResponseTopic != nil {
			attrs = append(attrs, "response_topic", *msg.Properties.ResponseTopic)
		}
		slog.Info("Received message", attrs...)
	})

	subID, err := c.Subscribe(subTopic, 1)
	if err != nil {
		c.Close()
		return err
	}
	slog.Info("Subscribed", "topic", subTopic, "subscription_id", subID)

	if err := c.Connect(ctx); err != nil {
		c.Close()
		return err
	}

	msg := message.Signal(pubTopic, []byte("Hello from stinger-mqtt!"))
	msg.Properties.ContentType = message.Ptr("text/plain")
	done, err := c.Publish(msg)
	if err != nil {
		slog.Error("Publish rejected", "topic", pubTopic, "error", err)
	} else {
		go func() {
			if err := done.WaitContext(ctx); err != nil {
				slog.Warn("Publish not confirmed", "topic", pubTopic, "error", err)
				return
			}
			slog.Info("Message published", "topic", pubTopic)
		}()
	}

	<-ctx.Done()
	slog.Info("Received shutdown signal")

	c.RemoveMessageCallback(handle)
	c.Unsubscribe(subTopic)
	if err := c.Close(); err != nil {
		return err
	}
	slog.Info("Client stopped gracefully")
	return nil
}

func openStore(cfg config.QueueConfig) (storage.QueueStore, error) {
	switch cfg.Type {
	case "badger":
		store, err := badger.New(badger.Config{Dir: cfg.BadgerDir, SyncWrites: true})
		if err != nil {
			return nil, err
		}
		slog.Info("Using BadgerDB offline queue", "dir", cfg.BadgerDir)
		return store, nil
	default:
		slog.Info("Using in-memory offline queue")
		return memory.New(), nil
	}
}
