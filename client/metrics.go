// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/stinger-ipc/stinger-mqtt/client"

// Publish outcomes.
const (
	outcomeSent     = "sent"
	outcomeQueued   = "queued"
	outcomeFailed   = "failed"
	outcomeAcked    = "acked"
	outcomeRejected = "rejected"
)

// metrics holds the client's OpenTelemetry instruments.
type metrics struct {
	publishes      metric.Int64Counter
	received       metric.Int64Counter
	connects       metric.Int64Counter
	disconnects    metric.Int64Counter
	callbackPanics metric.Int64Counter

	queueDepth    metric.Int64UpDownCounter
	subscriptions metric.Int64UpDownCounter

	dispatchDuration metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	m := &metrics{}

	var err error
	m.publishes, err = meter.Int64Counter(
		"mqtt.client.publishes",
		metric.WithDescription("Publishes by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publishes counter: %w", err)
	}

	m.received, err = meter.Int64Counter(
		"mqtt.client.messages.received",
		metric.WithDescription("Inbound messages dispatched to callbacks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create received counter: %w", err)
	}

	m.connects, err = meter.Int64Counter(
		"mqtt.client.connects",
		metric.WithDescription("Connection attempts by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connects counter: %w", err)
	}

	m.disconnects, err = meter.Int64Counter(
		"mqtt.client.disconnects",
		metric.WithDescription("Lost connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create disconnects counter: %w", err)
	}

	m.callbackPanics, err = meter.Int64Counter(
		"mqtt.client.callback.panics",
		metric.WithDescription("Message callbacks that panicked"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callbackPanics counter: %w", err)
	}

	m.queueDepth, err = meter.Int64UpDownCounter(
		"mqtt.client.queue.depth",
		metric.WithDescription("Publishes waiting for a connection"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queueDepth gauge: %w", err)
	}

	m.subscriptions, err = meter.Int64UpDownCounter(
		"mqtt.client.subscriptions",
		metric.WithDescription("Distinct subscribed topic filters"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions gauge: %w", err)
	}

	m.dispatchDuration, err = meter.Float64Histogram(
		"mqtt.client.dispatch.duration.ms",
		metric.WithDescription("Time spent running callbacks for one message in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatchDuration histogram: %w", err)
	}

	return m, nil
}

func (m *metrics) recordPublish(outcome string, qos byte) {
	m.publishes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("qos", int(qos)),
	))
}

func (m *metrics) recordReceived(qos byte) {
	m.received.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int("qos", int(qos)),
	))
}

func (m *metrics) recordConnect(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.connects.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

func (m *metrics) recordDisconnect(reasonCode byte) {
	m.disconnects.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int("reason_code", int(reasonCode)),
	))
}

func (m *metrics) recordCallbackPanic() {
	m.callbackPanics.Add(context.Background(), 1)
}

func (m *metrics) addQueueDepth(delta int) {
	if delta != 0 {
		m.queueDepth.Add(context.Background(), int64(delta))
	}
}

func (m *metrics) addSubscriptions(delta int) {
	m.subscriptions.Add(context.Background(), int64(delta))
}

func (m *metrics) recordDispatch(durationMs float64) {
	m.dispatchDuration.Record(context.Background(), durationMs)
}
