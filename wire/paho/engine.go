// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package paho implements wire.Engine for MQTT v5 on top of
// github.com/eclipse/paho.golang.
package paho

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
	"github.com/stinger-ipc/stinger-mqtt/wire"
)

// DefaultPacketTimeout bounds the wait for an acknowledgment of a single packet.
const DefaultPacketTimeout = 30 * time.Second

var (
	errAlreadyConnected = errors.New("paho: already connected")
	errConnectionClosed = errors.New("paho: connection closed")
)

// Config configures the engine.
type Config struct {
	// TLS enables TLS when set.
	TLS *tls.Config

	// PacketTimeout bounds the wait for SUBACK, UNSUBACK and publish
	// acknowledgments. Zero selects DefaultPacketTimeout.
	PacketTimeout time.Duration

	// Logger receives engine logs. Nil selects slog.Default().
	Logger *slog.Logger

	// Debug forwards paho's internal debug output to Logger.
	Debug bool
}

var _ wire.Engine = (*Engine)(nil)

// Engine is an MQTT v5 wire session. Each successful Connect opens a new
// network connection served by a new paho client. Publishes whose
// acknowledgment is lost with a connection are sent again on the next
// connection under the same attempt identifier.
type Engine struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher *wire.Dispatcher

	mu          sync.Mutex
	handlers    wire.Handlers
	handlersSet bool
	sess        *session
	retry       []op
	nextID      wire.AttemptID
	closed      bool

	wg sync.WaitGroup
}

// New returns an engine. Call SetHandlers before Connect.
func New(cfg Config) *Engine {
	if cfg.PacketTimeout <= 0 {
		cfg.PacketTimeout = DefaultPacketTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		logger:     logger.With("engine", "paho"),
		dispatcher: wire.NewDispatcher(0),
	}
}

type opKind int

const (
	opPublish opKind = iota
	opSubscribe
	opUnsubscribe
)

type op struct {
	kind opKind
	id   wire.AttemptID

	topic   string
	payload []byte
	qos     byte
	retain  bool
	props   wire.Properties
	subID   uint32
	noLocal bool
}

// session is one network connection and the worker feeding it.
type session struct {
	cli    *paho.Client
	ctx    context.Context
	cancel context.CancelFunc

	// Guarded by Engine.mu.
	pending []op
	lost    *wire.DisconnectInfo

	notify chan struct{}
	hook   atomic.Pointer[chan struct{}]
}

func (s *session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// SetHandlers implements wire.Engine.
func (e *Engine) SetHandlers(h wire.Handlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = h
	e.handlersSet = true
}

// Connect implements wire.Engine.
func (e *Engine) Connect(ctx context.Context, cfg wire.ConnectConfig) (wire.ConnectInfo, error) {
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return wire.ConnectInfo{}, wire.ErrEngineClosed
	case !e.handlersSet:
		e.mu.Unlock()
		return wire.ConnectInfo{}, wire.ErrHandlersUnset
	case e.sess != nil:
		e.mu.Unlock()
		return wire.ConnectInfo{}, errAlreadyConnected
	}
	e.mu.Unlock()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := e.dial(ctx, addr)
	if err != nil {
		return wire.ConnectInfo{}, fmt.Errorf("dial %s: %w", addr, err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{ctx: sctx, cancel: cancel, notify: make(chan struct{}, 1)}
	s.cli = paho.NewClient(paho.ClientConfig{
		ClientID:      cfg.ClientID,
		Conn:          packets.NewThreadSafeConn(conn),
		PacketTimeout: e.cfg.PacketTimeout,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				e.received(pr.Packet)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			e.connectionLost(s, wire.DisconnectInfo{ReasonCode: wire.ReasonUnspecifiedError, Err: err})
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			info := wire.DisconnectInfo{ReasonCode: d.ReasonCode}
			if d.Properties != nil {
				info.ReasonString = d.Properties.ReasonString
			}
			e.connectionLost(s, info)
		},
		PublishHook: func(*paho.Publish) {
			if ch := s.hook.Swap(nil); ch != nil {
				close(*ch)
			}
		},
	})
	if e.cfg.Debug {
		s.cli.SetDebugLogger(pahoLogger{logger: e.logger, level: slog.LevelDebug})
	}
	s.cli.SetErrorLogger(pahoLogger{logger: e.logger, level: slog.LevelError})

	ca, err := s.cli.Connect(ctx, connectPacket(cfg))
	if err != nil {
		cancel()
		if ca != nil && ca.ReasonCode >= wire.ReasonUnspecifiedError {
			refused := &wire.ConnAckError{ReasonCode: ca.ReasonCode}
			if ca.Properties != nil {
				refused.ReasonString = ca.Properties.ReasonString
			}
			return wire.ConnectInfo{}, refused
		}
		return wire.ConnectInfo{}, fmt.Errorf("connect %s: %w", addr, err)
	}

	e.mu.Lock()
	if e.closed || s.lost != nil {
		closed := e.closed
		e.mu.Unlock()
		cancel()
		_ = s.cli.Disconnect(&paho.Disconnect{ReasonCode: wire.ReasonSuccess})
		if closed {
			return wire.ConnectInfo{}, wire.ErrEngineClosed
		}
		return wire.ConnectInfo{}, errConnectionClosed
	}
	e.sess = s
	slices.SortFunc(e.retry, func(a, b op) int { return cmp.Compare(a.id, b.id) })
	s.pending = append(e.retry, s.pending...)
	e.retry = nil
	resent := len(s.pending)
	e.wg.Add(2)
	go e.work(s)
	go e.watch(s)
	e.mu.Unlock()
	s.wake()

	info := wire.ConnectInfo{SessionPresent: ca.SessionPresent}
	if ca.Properties != nil {
		info.ReasonString = ca.Properties.ReasonString
	}
	e.logger.Debug("Connection established", "address", addr, "session_present", ca.SessionPresent, "resent", resent)
	return info, nil
}

func (e *Engine) dial(ctx context.Context, addr string) (net.Conn, error) {
	if e.cfg.TLS != nil {
		d := &tls.Dialer{Config: e.cfg.TLS}
		return d.DialContext(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// watch reports a connection that paho shut down without a callback.
func (e *Engine) watch(s *session) {
	defer e.wg.Done()
	select {
	case <-s.cli.Done():
		e.connectionLost(s, wire.DisconnectInfo{ReasonCode: wire.ReasonUnspecifiedError, Err: errConnectionClosed})
	case <-s.ctx.Done():
	}
}

// connectionLost tears s down and reports it once.
func (e *Engine) connectionLost(s *session, info wire.DisconnectInfo) {
	e.mu.Lock()
	if e.sess != s {
		if s.lost == nil {
			s.lost = &info
		}
		e.mu.Unlock()
		return
	}
	e.detach(s)
	h := e.handlers.OnDisconnect
	e.mu.Unlock()

	e.logger.Debug("Connection lost", "reason_code", info.ReasonCode, "error", info.Err)
	if h != nil {
		e.dispatcher.Submit(func() { h(info) })
	}
}

// detach makes s inactive and keeps its unsent work for the next
// connection. e.mu must be held.
func (e *Engine) detach(s *session) {
	e.sess = nil
	if s.lost == nil {
		s.lost = &wire.DisconnectInfo{}
	}
	for _, o := range s.pending {
		if o.kind == opPublish {
			e.retry = append(e.retry, o)
		}
	}
	s.pending = nil
	s.cancel()
}

// Disconnect implements wire.Engine.
func (e *Engine) Disconnect(reasonCode byte) error {
	e.mu.Lock()
	s := e.sess
	if s == nil {
		e.mu.Unlock()
		return wire.ErrNotConnected
	}
	e.detach(s)
	e.mu.Unlock()

	if err := s.cli.Disconnect(&paho.Disconnect{ReasonCode: reasonCode}); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// Publish implements wire.Engine.
func (e *Engine) Publish(topic string, payload []byte, qos byte, retain bool, props wire.Properties) (wire.AttemptID, error) {
	if qos > 2 {
		return 0, wire.ErrInvalidQoS
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.active()
	if err != nil {
		return 0, err
	}
	e.nextID++
	s.pending = append(s.pending, op{
		kind:    opPublish,
		id:      e.nextID,
		topic:   topic,
		payload: slices.Clone(payload),
		qos:     qos,
		retain:  retain,
		props:   slices.Clone(props),
	})
	s.wake()
	return e.nextID, nil
}

// Subscribe implements wire.Engine.
func (e *Engine) Subscribe(topic string, opts wire.SubscribeOptions) error {
	if opts.QoS > 2 {
		return wire.ErrInvalidQoS
	}
	return e.enqueue(op{kind: opSubscribe, topic: topic, qos: opts.QoS, subID: opts.SubscriptionID, noLocal: opts.NoLocal})
}

// Unsubscribe implements wire.Engine.
func (e *Engine) Unsubscribe(topic string) error {
	return e.enqueue(op{kind: opUnsubscribe, topic: topic})
}

func (e *Engine) enqueue(o op) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.active()
	if err != nil {
		return err
	}
	s.pending = append(s.pending, o)
	s.wake()
	return nil
}

func (e *Engine) active() (*session, error) {
	if e.closed {
		return nil, wire.ErrEngineClosed
	}
	if e.sess == nil {
		return nil, wire.ErrNotConnected
	}
	return e.sess, nil
}

// Close implements wire.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	s := e.sess
	if s != nil {
		e.detach(s)
	}
	e.retry = nil
	e.mu.Unlock()

	var err error
	if s != nil {
		err = s.cli.Disconnect(&paho.Disconnect{ReasonCode: wire.ReasonSuccess})
	}
	e.wg.Wait()
	e.dispatcher.Close()
	return err
}

// work sends the pending operations of s in order until s is detached.
func (e *Engine) work(s *session) {
	defer e.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
		}
		for {
			e.mu.Lock()
			if len(s.pending) == 0 || s.ctx.Err() != nil {
				e.mu.Unlock()
				break
			}
			o := s.pending[0]
			s.pending = s.pending[1:]
			e.mu.Unlock()

			e.start(s, o)
		}
	}
}

// start issues o on its own goroutine. For publishes it returns once paho
// has taken the packet, so packets leave in the order they were queued.
func (e *Engine) start(s *session, o op) {
	switch o.kind {
	case opPublish:
		taken := make(chan struct{})
		s.hook.Store(&taken)
		finished := make(chan struct{})
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer close(finished)
			pr, err := s.cli.Publish(s.ctx, publishPacket(o))
			e.published(s, o, pr, err)
		}()
		select {
		case <-taken:
		case <-finished:
		case <-s.ctx.Done():
		}
		s.hook.CompareAndSwap(&taken, nil)

	case opSubscribe:
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.subscribe(s, o)
		}()

	case opUnsubscribe:
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			_, err := s.cli.Unsubscribe(s.ctx, &paho.Unsubscribe{Topics: []string{o.topic}})
			if err != nil && s.ctx.Err() == nil {
				e.reportError(fmt.Errorf("unsubscribe from %q: %w", o.topic, err))
			}
		}()
	}
}

func (e *Engine) subscribe(s *session, o op) {
	sub := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: o.topic, QoS: o.qos, NoLocal: o.noLocal}},
	}
	if o.subID != 0 {
		id := int(o.subID)
		sub.Properties = &paho.SubscribeProperties{SubscriptionIdentifier: &id}
	}

	_, err := s.cli.Subscribe(s.ctx, sub)
	if err != nil && o.subID != 0 && errors.Is(err, paho.ErrInvalidArguments) {
		// The broker may not support subscription identifiers.
		e.logger.Warn("Subscribing without subscription identifier", "topic", o.topic, "error", err)
		sub.Properties = nil
		_, err = s.cli.Subscribe(s.ctx, sub)
	}
	if err != nil && s.ctx.Err() == nil {
		e.reportError(fmt.Errorf("subscribe to %q: %w", o.topic, err))
	}
}

// published reports the outcome of a publish attempt made on s. An
// acknowledgment that times out on a live connection fails the attempt.
// Attempts cut short by a lost connection go to the current connection, or
// wait for the next one.
func (e *Engine) published(s *session, o op, pr *paho.PublishResponse, err error) {
	switch {
	case err == nil:
		var reason byte
		if pr != nil {
			reason = pr.ReasonCode
		}
		e.ack(o.id, reason)
	case pr != nil:
		e.ack(o.id, pr.ReasonCode)
	case errors.Is(err, paho.ErrInvalidArguments):
		e.reportError(fmt.Errorf("publish to %q: %w", o.topic, err))
		e.ack(o.id, wire.ReasonImplementationError)
	case errors.Is(err, context.DeadlineExceeded) && s.ctx.Err() == nil:
		// The packet stays in paho's session state and is not sent again.
		e.reportError(fmt.Errorf("publish to %q not acknowledged within %s: %w", o.topic, e.cfg.PacketTimeout, err))
		e.ack(o.id, wire.ReasonUnspecifiedError)
	default:
		e.mu.Lock()
		switch {
		case e.closed:
		case e.sess != nil && e.sess != s:
			e.sess.pending = append(e.sess.pending, o)
			e.sess.wake()
		default:
			e.retry = append(e.retry, o)
		}
		e.mu.Unlock()
		e.logger.Debug("Publish attempt interrupted", "attempt_id", o.id, "topic", o.topic, "error", err)
	}
}

func (e *Engine) ack(id wire.AttemptID, reasonCode byte) {
	e.mu.Lock()
	h := e.handlers.OnPublishAck
	e.mu.Unlock()
	if h != nil {
		e.dispatcher.Submit(func() { h(id, reasonCode) })
	}
}

func (e *Engine) received(p *paho.Publish) {
	e.mu.Lock()
	h := e.handlers.OnMessage
	e.mu.Unlock()
	if h == nil {
		return
	}
	in := wire.Inbound{
		Topic:      p.Topic,
		Payload:    p.Payload,
		QoS:        p.QoS,
		Retain:     p.Retain,
		Properties: fromPublishProperties(p.Properties),
	}
	e.dispatcher.Submit(func() { h(in) })
}

func (e *Engine) reportError(err error) {
	e.mu.Lock()
	h := e.handlers.OnError
	e.mu.Unlock()
	if h != nil {
		e.dispatcher.Submit(func() { h(err) })
	}
}

// pahoLogger adapts slog to paho's Println/Printf logger.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.logger.Log(context.Background(), l.level, fmt.Sprint(v...))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.logger.Log(context.Background(), l.level, fmt.Sprintf(format, v...))
}
