// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package client implements the session engine of an MQTT v5 client: it keeps a
// connection to the broker through a wire.Engine, reference-counts
// subscriptions, queues publishes issued while offline and fans inbound
// messages out to registered callbacks.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stinger-ipc/stinger-mqtt/codec"
	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/topics"
	"github.com/stinger-ipc/stinger-mqtt/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	errClosedDuringConnect = errors.New("client closed during connect")
	errLostDuringConnect   = errors.New("connection lost before connect completed")
)

// Client is a thread-safe MQTT session controller.
//
// One mutex guards the subscription registry, the publish queue, the callback
// bus and state transitions. Engine calls made under it never block on the
// network; callbacks run outside it.
type Client struct {
	opts   *Options
	engine wire.Engine
	codec  *codec.Codec
	logger *slog.Logger
	level  *slog.LevelVar

	metrics *metrics
	tracer  trace.Tracer

	onlineTopic string

	mu        sync.Mutex
	state     *stateManager
	subs      *subscriptionRegistry
	queue     *publishQueue
	callbacks *callbackBus
	loopDone  chan struct{}
	lostCh    chan struct{}
	// cancelLoop stops the connection loop, aborting an attempt in flight.
	cancelLoop context.CancelFunc
	// lostInConnect records a loss reported while an attempt is in flight.
	lostInConnect bool

	stopCh chan struct{}
}

// New creates a client driving engine. The client owns engine and
// opts.Store: both are released by Close, or immediately when New fails.
func New(engine wire.Engine, opts *Options) (*Client, error) {
	if engine == nil {
		return nil, ErrNoEngine
	}
	if opts == nil {
		opts = NewOptions()
	}

	c, err := newClient(engine, opts)
	if err != nil {
		engine.Close()
		if opts.Store != nil {
			opts.Store.Close()
		}
		return nil, err
	}
	return c, nil
}

func newClient(engine wire.Engine, opts *Options) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(opts.LogLevel)
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := slog.New(newLevelHandler(base.Handler(), level)).With("client_id", opts.ClientID)

	m, err := newMetrics(opts.MeterProvider)
	if err != nil {
		return nil, err
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	c := &Client{
		opts:        opts,
		engine:      engine,
		codec:       codec.New(logger),
		logger:      logger,
		level:       level,
		metrics:     m,
		tracer:      tp.Tracer(instrumentationName),
		onlineTopic: OnlineTopicFor(opts.ClientID),
		state:       newStateManager(),
		subs:        newSubscriptionRegistry(),
		queue:       newPublishQueue(opts.ClientID, opts.Store, logger),
		callbacks:   newCallbackBus(),
		stopCh:      make(chan struct{}),
	}

	n, err := c.queue.load()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		c.metrics.addQueueDepth(n)
		logger.Info("Restored queued publishes", "count", n)
	}

	engine.SetHandlers(wire.Handlers{
		OnDisconnect: c.handleDisconnect,
		OnMessage:    c.handleMessage,
		OnPublishAck: c.handlePublishAck,
		OnError:      c.handleError,
	})

	return c, nil
}

// Connect starts connecting in the background and returns immediately.
// Attempts are retried with exponential backoff until one succeeds, the
// client is closed or ctx ends. With AutoReconnect, a lost connection is
// re-established the same way while ctx is alive.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.isClosed() {
		return ErrClientClosed
	}
	if !c.state.transition(StateDisconnected, StateConnecting) {
		return ErrAlreadyConnected
	}

	if c.cancelLoop != nil {
		c.cancelLoop()
	}
	ctx, cancel := context.WithCancel(ctx)

	// Each loop gets its own loss channel.
	done := make(chan struct{})
	lost := make(chan struct{}, 1)
	c.loopDone = done
	c.lostCh = lost
	c.cancelLoop = cancel
	go c.run(ctx, lost, done)
	return nil
}

func (c *Client) run(ctx context.Context, lost <-chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		if !c.connectWithBackoff(ctx) {
			c.mu.Lock()
			c.state.transition(StateConnecting, StateDisconnected)
			c.mu.Unlock()
			return
		}

		select {
		case <-c.stopCh:
			return
		case <-lost:
		}

		if !c.opts.AutoReconnect || ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		ok := c.state.transition(StateDisconnected, StateConnecting)
		c.mu.Unlock()
		if !ok {
			return
		}
		c.logger.Info("Reconnecting to broker")
	}
}

// connectWithBackoff returns true once connected, false when stopped.
func (c *Client) connectWithBackoff(ctx context.Context) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectBackoff
	b.MaxInterval = c.opts.MaxReconnectWait
	b.Reset()

	for attempt := 1; ; attempt++ {
		err := c.connectOnce(ctx)
		if err == nil {
			return true
		}
		if errors.Is(err, errClosedDuringConnect) || c.state.isClosed() {
			return false
		}

		delay := b.NextBackOff()
		c.logger.Warn("Connection attempt failed",
			"host", c.opts.Host,
			"port", c.opts.Port,
			"attempt", attempt,
			"retry_in", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.stopCh:
			timer.Stop()
			return false
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("Connect canceled", "error", ctx.Err())
			return false
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "mqtt.connect", trace.WithAttributes(
		attribute.String("mqtt.client_id", c.opts.ClientID),
		attribute.String("server.address", c.opts.Host),
		attribute.Int("server.port", c.opts.Port),
	))
	defer span.End()

	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	c.mu.Lock()
	c.lostInConnect = false
	c.mu.Unlock()

	info, err := c.engine.Connect(ctx, c.connectConfig())
	if err != nil {
		return c.connectFailed(span, err)
	}

	c.mu.Lock()
	if c.lostInConnect && !c.state.isClosed() {
		c.mu.Unlock()
		c.disconnectEngine()
		return c.connectFailed(span, errLostDuringConnect)
	}
	if !c.state.transition(StateConnecting, StateConnected) {
		c.mu.Unlock()
		c.disconnectEngine()
		return errClosedDuringConnect
	}
	c.metrics.recordConnect(true)
	span.SetAttributes(attribute.Bool("mqtt.session_present", info.SessionPresent))
	c.onConnected(info)
	c.mu.Unlock()

	if c.opts.OnConnect != nil {
		c.opts.OnConnect(info.SessionPresent)
	}
	return nil
}

func (c *Client) connectFailed(span trace.Span, err error) error {
	c.metrics.recordConnect(false)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// disconnectEngine drops a connection the client will not use.
func (c *Client) disconnectEngine() {
	if err := c.engine.Disconnect(wire.ReasonSuccess); err != nil && !errors.Is(err, wire.ErrNotConnected) {
		c.logger.Debug("Disconnect of unused connection failed", "error", err)
	}
}

func (c *Client) connectConfig() wire.ConnectConfig {
	will := statusMessage(c.onlineTopic, offlinePayload)
	return wire.ConnectConfig{
		Host:           c.opts.Host,
		Port:           c.opts.Port,
		ClientID:       c.opts.ClientID,
		Username:       c.opts.Username,
		Password:       c.opts.Password,
		KeepAlive:      c.opts.KeepAlive,
		ConnectTimeout: c.opts.ConnectTimeout,
		CleanStart:     c.opts.CleanStart,
		SessionExpiry:  c.opts.SessionExpiry,
		Will: &wire.Will{
			Topic:      will.Topic,
			Payload:    will.Payload,
			QoS:        will.QoS,
			Retain:     will.Retain,
			Properties: c.codec.Encode(will.Properties),
		},
	}
}

// onConnected runs the on-connect steps in their fixed order: deferred
// unsubscribes, staged subscriptions, queued publishes, online status.
// Caller holds c.mu.
func (c *Client) onConnected(info wire.ConnectInfo) {
	c.logger.Info("Connected to broker",
		"host", c.opts.Host,
		"port", c.opts.Port,
		"session_present", info.SessionPresent,
		"reason_string", info.ReasonString)

	if !info.SessionPresent {
		c.subs.stageAll()
		c.subs.dropDeferred()
	}
	c.flushUnsubscribes()
	c.flushSubscriptions()
	c.flushPublishes()
	c.publishOnline()
}

func (c *Client) flushUnsubscribes() {
	for _, topic := range c.subs.deferred() {
		err := c.engine.Unsubscribe(topic)
		if errors.Is(err, wire.ErrNotConnected) {
			return
		}
		c.subs.unsubscribed(topic)
		if err != nil {
			c.logger.Error("Failed to remove subscription kept by the session", "topic", topic, "error", err)
			continue
		}
		c.logger.Debug("Removed subscription kept by the session", "topic", topic)
	}
}

func (c *Client) flushSubscriptions() {
	for _, rec := range c.subs.staged() {
		err := c.engine.Subscribe(rec.topic, subscribeOptions(rec.qos, rec.id))
		if errors.Is(err, wire.ErrNotConnected) {
			return
		}
		rec.staged = false
		if err != nil {
			c.logger.Error("Failed to subscribe staged topic", "topic", rec.topic, "subscription_id", rec.id, "error", err)
			continue
		}
		c.logger.Debug("Subscribed staged topic", "topic", rec.topic, "qos", rec.qos, "subscription_id", rec.id)
	}
}

func (c *Client) flushPublishes() {
	if c.queue.len() == 0 {
		return
	}

	sent, failed, err := c.queue.flush(c.send)
	c.metrics.addQueueDepth(-(sent + failed))
	if err != nil {
		c.logger.Warn("Publish flush interrupted", "sent", sent, "remaining", c.queue.len(), "error", err)
		return
	}
	c.logger.Info("Flushed queued publishes", "sent", sent, "failed", failed)
}

func (c *Client) publishOnline() {
	msg := statusMessage(c.onlineTopic, onlinePayload)
	id, err := c.send(msg)
	if err != nil {
		c.logger.Error("Failed to publish online status", "topic", c.onlineTopic, "error", err)
		return
	}
	c.metrics.recordPublish(outcomeSent, msg.QoS)
	c.queue.track(id, msg)
}

// send hands msg to the engine. Caller holds c.mu.
func (c *Client) send(msg message.Message) (wire.AttemptID, error) {
	return c.engine.Publish(msg.Topic, msg.Payload, msg.QoS, msg.Retain, c.codec.Encode(msg.Properties))
}

// subscribeOptions sets NoLocal so the client never receives its own
// publishes, its online status included.
func subscribeOptions(qos byte, id uint32) wire.SubscribeOptions {
	return wire.SubscribeOptions{QoS: qos, SubscriptionID: id, NoLocal: true}
}

// Publish sends msg. While disconnected the message is queued and sent, in
// order, once the connection is established; the returned completion
// resolves when the broker acknowledges it. Wire errors other than a lost
// connection are returned and nothing is queued.
func (c *Client) Publish(msg message.Message) (*Completion, error) {
	if msg.QoS > 2 {
		return nil, ErrInvalidQoS
	}
	if err := topics.ValidateTopicName(msg.Topic); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, msg.Topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.isClosed() {
		return nil, ErrClientClosed
	}
	if !c.state.isConnected() {
		return c.enqueue(msg), nil
	}

	id, err := c.send(msg)
	if errors.Is(err, wire.ErrNotConnected) {
		return c.enqueue(msg), nil
	}
	if err != nil {
		c.metrics.recordPublish(outcomeFailed, msg.QoS)
		return nil, fmt.Errorf("publish to %q: %w", msg.Topic, err)
	}

	c.metrics.recordPublish(outcomeSent, msg.QoS)
	c.logger.Debug("Published message", "topic", msg.Topic, "qos", msg.QoS, "retain", msg.Retain, "bytes", len(msg.Payload))
	return c.queue.track(id, msg), nil
}

func (c *Client) enqueue(msg message.Message) *Completion {
	comp := c.queue.enqueue(msg)
	c.metrics.recordPublish(outcomeQueued, msg.QoS)
	c.metrics.addQueueDepth(1)
	c.logger.Debug("Queued publish while disconnected", "topic", msg.Topic, "queued", c.queue.len())
	return comp
}

// Subscribe adds a reference to topic and returns its subscription
// identifier. Only the first reference reaches the broker; while
// disconnected the subscription is staged until the next connect.
func (c *Client) Subscribe(topic string, qos byte) (uint32, error) {
	if qos > 2 {
		return 0, ErrInvalidQoS
	}
	if err := topics.ValidateTopicFilter(topic); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.isClosed() {
		return 0, ErrClientClosed
	}

	rec, isNew := c.subs.acquire(topic, qos)
	if !isNew {
		c.logger.Debug("Subscription reference added", "topic", topic, "subscription_id", rec.id, "ref_count", rec.refCount)
		return rec.id, nil
	}
	c.metrics.addSubscriptions(1)

	if !c.state.isConnected() {
		rec.staged = true
		c.logger.Info("Subscription staged until connected", "topic", topic, "qos", qos, "subscription_id", rec.id)
		return rec.id, nil
	}

	err := c.engine.Subscribe(topic, subscribeOptions(qos, rec.id))
	if errors.Is(err, wire.ErrNotConnected) {
		rec.staged = true
		c.logger.Info("Subscription staged until connected", "topic", topic, "qos", qos, "subscription_id", rec.id)
		return rec.id, nil
	}
	if err != nil {
		c.subs.discard(topic)
		c.metrics.addSubscriptions(-1)
		return 0, fmt.Errorf("subscribe to %q: %w", topic, err)
	}

	c.logger.Info("Subscribed", "topic", topic, "qos", qos, "subscription_id", rec.id)
	return rec.id, nil
}

// Unsubscribe drops a reference to topic. The broker subscription is removed
// with the last reference; while disconnected the removal waits for the next
// connect that resumes the session. Unknown topics are logged and ignored.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, removed, known := c.subs.release(topic)
	if !known {
		c.logger.Warn("Unsubscribe of unknown topic ignored", "topic", topic)
		return
	}
	if !removed {
		c.logger.Debug("Subscription reference dropped", "topic", topic, "ref_count", rec.refCount)
		return
	}
	c.metrics.addSubscriptions(-1)

	if rec.staged {
		c.logger.Debug("Dropped staged subscription", "topic", topic, "subscription_id", rec.id)
		return
	}
	if !c.state.isConnected() {
		c.subs.deferUnsubscribe(topic)
		c.logger.Debug("Unsubscribe deferred until connected", "topic", topic, "subscription_id", rec.id)
		return
	}

	err := c.engine.Unsubscribe(topic)
	if errors.Is(err, wire.ErrNotConnected) {
		c.subs.deferUnsubscribe(topic)
		c.logger.Debug("Unsubscribe deferred until connected", "topic", topic, "subscription_id", rec.id)
		return
	}
	if err != nil {
		c.logger.Error("Failed to unsubscribe", "topic", topic, "error", err)
		return
	}
	c.logger.Info("Unsubscribed", "topic", topic, "subscription_id", rec.id)
}

// AddMessageCallback registers fn for every inbound message. Callbacks run in
// registration order on the engine's event goroutine and must not modify the
// message payload.
func (c *Client) AddMessageCallback(fn MessageCallback) CallbackHandle {
	if fn == nil {
		c.logger.Warn("Ignoring nil message callback")
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks.add(fn)
}

// RemoveMessageCallback unregisters the callback. Unknown handles are logged
// and ignored.
func (c *Client) RemoveMessageCallback(h CallbackHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.callbacks.remove(h) {
		c.logger.Warn("Remove of unknown message callback ignored", "handle", h)
	}
}

// TopicMatchesSubscription reports whether topic matches the filter.
func (c *Client) TopicMatchesSubscription(topic, filter string) bool {
	return topics.Match(filter, topic)
}

// ClientID returns the MQTT client identifier.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

// OnlineTopic returns the retained status topic, client/{clientId}/online.
func (c *Client) OnlineTopic() string {
	return c.onlineTopic
}

// State returns the current client state.
func (c *Client) State() State {
	return c.state.get()
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.state.isConnected()
}

// SetLogLevel changes the minimum level of the client's diagnostics.
func (c *Client) SetLogLevel(level slog.Level) {
	c.level.Set(level)
}

// SubscriptionCount returns the reference count of topic.
func (c *Client) SubscriptionCount(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.count(topic)
}

// PendingCount returns the number of publishes waiting for a connection.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// InflightCount returns the number of publishes waiting for acknowledgment.
func (c *Client) InflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.inflightLen()
}

func (c *Client) handleDisconnect(info wire.DisconnectInfo) {
	c.mu.Lock()
	if c.state.get() == StateConnecting {
		// connectOnce fails the attempt and the loop retries.
		c.lostInConnect = true
		c.mu.Unlock()
		c.logger.Warn("Connection lost before connect completed",
			"reason_code", info.ReasonCode,
			"reason_string", info.ReasonString,
			"error", info.Err)
		return
	}
	ok := c.state.transition(StateConnected, StateDisconnected)
	lost := c.lostCh
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case lost <- struct{}{}:
	default:
	}

	c.metrics.recordDisconnect(info.ReasonCode)
	c.logger.Warn("Connection lost",
		"reason_code", info.ReasonCode,
		"reason_string", info.ReasonString,
		"error", info.Err)

	if c.opts.OnConnectionLost != nil {
		err := info.Err
		if err == nil {
			err = fmt.Errorf("disconnected by broker (reason 0x%02X)", info.ReasonCode)
		}
		c.opts.OnConnectionLost(err)
	}
}

func (c *Client) handleMessage(in wire.Inbound) {
	msg := message.Message{
		Topic:      in.Topic,
		Payload:    in.Payload,
		QoS:        in.QoS,
		Retain:     in.Retain,
		Properties: c.codec.Decode(in.Properties),
	}

	c.mu.Lock()
	if c.state.isClosed() {
		c.mu.Unlock()
		return
	}
	callbacks := c.callbacks.snapshot()
	c.mu.Unlock()

	c.metrics.recordReceived(msg.QoS)
	c.logger.Debug("Received message", "topic", msg.Topic, "qos", msg.QoS, "bytes", len(msg.Payload), "callbacks", len(callbacks))

	start := time.Now()
	for _, cb := range callbacks {
		c.invoke(cb, msg)
	}
	c.metrics.recordDispatch(float64(time.Since(start).Microseconds()) / 1000)
}

func (c *Client) invoke(cb callbackEntry, msg message.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.recordCallbackPanic()
			c.logger.Error("Message callback panicked", "handle", cb.handle, "topic", msg.Topic, "panic", r)
		}
	}()
	cb.fn(msg)
}

func (c *Client) handlePublishAck(id wire.AttemptID, reasonCode byte) {
	c.mu.Lock()
	p, ok := c.queue.resolve(id, reasonCode)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Ignoring acknowledgment of unknown publish", "attempt_id", id)
		return
	}
	if reasonCode >= wire.ReasonUnspecifiedError {
		c.metrics.recordPublish(outcomeRejected, p.msg.QoS)
		c.logger.Warn("Publish rejected by broker", "topic", p.msg.Topic, "reason_code", reasonCode)
		return
	}
	c.metrics.recordPublish(outcomeAcked, p.msg.QoS)
}

func (c *Client) handleError(err error) {
	c.logger.Error("Wire engine error", "error", err)
}

// Close permanently closes the client. Pending completions fail with
// ErrClientClosed, the connection is closed and the engine and queue store
// are released. With WillOnClose the broker is asked to publish the offline
// status. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state.isClosed() {
		c.mu.Unlock()
		return nil
	}
	wasConnected := c.state.isConnected()
	c.state.set(StateClosed)
	depth := c.queue.len()
	failed := c.queue.failAll(ErrClientClosed)
	done := c.loopDone
	cancel := c.cancelLoop
	c.mu.Unlock()

	c.metrics.addQueueDepth(-depth)
	close(c.stopCh)
	if cancel != nil {
		cancel()
	}

	var errs []error
	if wasConnected {
		reason := wire.ReasonSuccess
		if c.opts.WillOnClose {
			reason = wire.ReasonDisconnectWithWill
		}
		if err := c.engine.Disconnect(reason); err != nil && !errors.Is(err, wire.ErrNotConnected) {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
	}
	if err := c.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	if done != nil {
		<-done
	}
	if c.opts.Store != nil {
		if err := c.opts.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	c.logger.Info("Client closed", "failed_completions", failed)
	return errors.Join(errs...)
}
