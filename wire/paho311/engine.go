// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package paho311 implements wire.Engine for MQTT v3.1.1 brokers on top of
// github.com/eclipse/paho.mqtt.golang. MQTT v3.1.1 has no properties, so
// message properties are dropped on publish and absent on receipt.
package paho311

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
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stinger-ipc/stinger-mqtt/wire"
)

const (
	// DefaultWillTimeout bounds the wait for the will publish sent by a
	// disconnect with reason 0x04.
	DefaultWillTimeout = time.Second

	// quiesce is the time in milliseconds Disconnect lets pending work finish.
	quiesce = 250
)

var errAlreadyConnected = errors.New("paho311: already connected")

// Config configures the engine.
type Config struct {
	// TLS enables TLS when set.
	TLS *tls.Config

	// WillTimeout bounds the will publish of Disconnect(0x04). Zero selects
	// DefaultWillTimeout.
	WillTimeout time.Duration

	// Logger receives engine logs. Nil selects slog.Default().
	Logger *slog.Logger
}

var _ wire.Engine = (*Engine)(nil)

// Engine is an MQTT v3.1.1 wire session. Each successful Connect creates a
// new paho client. Publishes interrupted by a lost connection are sent again
// on the next connection under the same attempt identifier.
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
	if cfg.WillTimeout <= 0 {
		cfg.WillTimeout = DefaultWillTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:        cfg,
		logger:     logger.With("engine", "paho311"),
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
	kind    opKind
	id      wire.AttemptID
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

type session struct {
	cli    mqtt.Client
	will   *wire.Will
	ctx    context.Context
	cancel context.CancelFunc

	// Guarded by Engine.mu.
	pending []op
	lost    bool

	notify chan struct{}
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

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{will: cfg.Will, ctx: sctx, cancel: cancel, notify: make(chan struct{}, 1)}
	s.cli = mqtt.NewClient(e.clientOptions(cfg, s))

	tok := s.cli.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		cancel()
		s.cli.Disconnect(0)
		return wire.ConnectInfo{}, ctx.Err()
	}
	if err := tok.Error(); err != nil {
		cancel()
		if ct, ok := tok.(*mqtt.ConnectToken); ok && ct.ReturnCode() != 0 {
			return wire.ConnectInfo{}, &wire.ConnAckError{ReasonCode: connackReason(ct.ReturnCode()), ReasonString: err.Error()}
		}
		return wire.ConnectInfo{}, fmt.Errorf("connect %s: %w", brokerURL(cfg.Host, cfg.Port, e.cfg.TLS != nil), err)
	}
	var present bool
	if ct, ok := tok.(*mqtt.ConnectToken); ok {
		present = ct.SessionPresent()
	}

	e.mu.Lock()
	if e.closed || s.lost {
		closed := e.closed
		e.mu.Unlock()
		cancel()
		s.cli.Disconnect(0)
		if closed {
			return wire.ConnectInfo{}, wire.ErrEngineClosed
		}
		return wire.ConnectInfo{}, wire.ErrNotConnected
	}
	e.sess = s
	slices.SortFunc(e.retry, func(a, b op) int { return cmp.Compare(a.id, b.id) })
	s.pending = e.retry
	e.retry = nil
	e.wg.Add(1)
	go e.work(s)
	e.mu.Unlock()
	s.wake()

	e.logger.Debug("Connection established", "session_present", present)
	return wire.ConnectInfo{SessionPresent: present}, nil
}

func (e *Engine) clientOptions(cfg wire.ConnectConfig, s *session) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Host, cfg.Port, e.cfg.TLS != nil)).
		SetProtocolVersion(4).
		SetClientID(cfg.ClientID).
		SetCleanSession(cfg.CleanStart).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
			e.received(m)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			e.connectionLost(s, wire.DisconnectInfo{ReasonCode: wire.ReasonUnspecifiedError, Err: err})
		})
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if e.cfg.TLS != nil {
		opts.SetTLSConfig(e.cfg.TLS)
	}
	if w := cfg.Will; w != nil {
		opts.SetBinaryWill(w.Topic, w.Payload, w.QoS, w.Retain)
	}
	return opts
}

func brokerURL(host string, port int, secure bool) string {
	scheme := "tcp"
	if secure {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// connackReason maps a v3.1.1 CONNACK return code to its v5 reason code.
func connackReason(rc byte) byte {
	switch rc {
	case 1:
		return 0x84 // unsupported protocol version
	case 2:
		return 0x85 // client identifier not valid
	case 3:
		return 0x88 // server unavailable
	case 4:
		return 0x86 // bad user name or password
	case 5:
		return 0x87 // not authorized
	}
	return wire.ReasonUnspecifiedError
}

func (e *Engine) connectionLost(s *session, info wire.DisconnectInfo) {
	e.mu.Lock()
	if e.sess != s {
		s.lost = true
		e.mu.Unlock()
		return
	}
	e.detach(s)
	h := e.handlers.OnDisconnect
	e.mu.Unlock()

	e.logger.Debug("Connection lost", "error", info.Err)
	if h != nil {
		e.dispatcher.Submit(func() { h(info) })
	}
}

// detach makes s inactive and keeps its unsent publishes. e.mu must be held.
func (e *Engine) detach(s *session) {
	e.sess = nil
	s.lost = true
	for _, o := range s.pending {
		if o.kind == opPublish {
			e.retry = append(e.retry, o)
		}
	}
	s.pending = nil
	s.cancel()
}

// Disconnect implements wire.Engine. MQTT v3.1.1 carries no reason code, so
// ReasonDisconnectWithWill publishes the will before closing.
func (e *Engine) Disconnect(reasonCode byte) error {
	e.mu.Lock()
	s := e.sess
	if s == nil {
		e.mu.Unlock()
		return wire.ErrNotConnected
	}
	e.detach(s)
	e.mu.Unlock()

	var err error
	if reasonCode == wire.ReasonDisconnectWithWill && s.will != nil {
		tok := s.cli.Publish(s.will.Topic, s.will.QoS, s.will.Retain, s.will.Payload)
		if !tok.WaitTimeout(e.cfg.WillTimeout) {
			err = errors.New("paho311: will publish timed out")
		} else if tok.Error() != nil {
			err = fmt.Errorf("publish will: %w", tok.Error())
		}
	}
	s.cli.Disconnect(quiesce)
	return err
}

// Publish implements wire.Engine. Properties are not sent.
func (e *Engine) Publish(topic string, payload []byte, qos byte, retain bool, _ wire.Properties) (wire.AttemptID, error) {
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
	})
	s.wake()
	return e.nextID, nil
}

// Subscribe implements wire.Engine. Subscription identifiers and NoLocal do
// not exist in MQTT v3.1.1 and are ignored.
func (e *Engine) Subscribe(topic string, opts wire.SubscribeOptions) error {
	if opts.QoS > 2 {
		return wire.ErrInvalidQoS
	}
	return e.enqueue(op{kind: opSubscribe, topic: topic, qos: opts.QoS})
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

	if s != nil {
		s.cli.Disconnect(quiesce)
	}
	e.wg.Wait()
	e.dispatcher.Close()
	return nil
}

// work hands the pending operations of s to paho in order.
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

func (e *Engine) start(s *session, o op) {
	var tok mqtt.Token
	switch o.kind {
	case opPublish:
		tok = s.cli.Publish(o.topic, o.qos, o.retain, o.payload)
	case opSubscribe:
		tok = s.cli.Subscribe(o.topic, o.qos, nil)
	case opUnsubscribe:
		tok = s.cli.Unsubscribe(o.topic)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-tok.Done():
		case <-s.ctx.Done():
			if o.kind == opPublish {
				e.interrupted(s, o)
			}
			return
		}

		err := tok.Error()
		switch {
		case o.kind == opPublish && err == nil:
			e.ack(o.id, wire.ReasonSuccess)
		case o.kind == opPublish && errors.Is(err, mqtt.ErrNotConnected):
			e.interrupted(s, o)
		case o.kind == opPublish:
			e.reportError(fmt.Errorf("publish to %q: %w", o.topic, err))
			e.ack(o.id, wire.ReasonUnspecifiedError)
		case err != nil:
			e.reportError(fmt.Errorf("%s %q: %w", o.verb(), o.topic, err))
		case o.kind == opSubscribe:
			if st, ok := tok.(*mqtt.SubscribeToken); ok {
				if rc, found := st.Result()[o.topic]; found && rc >= wire.ReasonUnspecifiedError {
					e.reportError(fmt.Errorf("subscribe to %q: refused (return code 0x%02X)", o.topic, rc))
				}
			}
		}
	}()
}

func (o op) verb() string {
	if o.kind == opSubscribe {
		return "subscribe to"
	}
	return "unsubscribe from"
}

// interrupted keeps a publish cut short by a lost connection for the
// current or next connection.
func (e *Engine) interrupted(s *session, o op) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
	case e.sess != nil && e.sess != s:
		e.sess.pending = append(e.sess.pending, o)
		e.sess.wake()
	default:
		e.retry = append(e.retry, o)
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

func (e *Engine) received(m mqtt.Message) {
	e.mu.Lock()
	h := e.handlers.OnMessage
	e.mu.Unlock()
	if h == nil {
		return
	}
	in := wire.Inbound{
		Topic:   m.Topic(),
		Payload: m.Payload(),
		QoS:     m.Qos(),
		Retain:  m.Retained(),
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
