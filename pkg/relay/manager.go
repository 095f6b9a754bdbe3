// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aiku/livesms-relay/pkg/livesms"
	"github.com/aiku/livesms-relay/pkg/notify"
)

// ErrTransport wraps every connect, read and write failure on the source
// connection. Transport errors always lead to a reconnect.
var ErrTransport = errors.New("transport error")

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 30 * time.Second
)

// Dialer opens the source websocket. *websocket.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Manager owns the source connection: connect, handshake, heartbeat,
// teardown and reconnect. Frames are handled one at a time in arrival order
// on the receive loop; parsed OTP events are handed to the sender
// synchronously, so a slow or throttled delivery delays the next frame but
// never reorders it.
type Manager struct {
	url         string
	authMessage string
	header      http.Header

	pingInterval   time.Duration
	handshakeDelay time.Duration
	reconnectDelay time.Duration

	chatID  string
	footer  string
	buttons [][]notify.Button

	dialer Dialer
	sender notify.Sender
	parser livesms.Parser
	log    zerolog.Logger

	state atomic.Int32
	stats managerStats
}

// NewManager creates a manager for the configured source that delivers
// alerts through sender.
func NewManager(cfg *Config, sender notify.Sender, log zerolog.Logger) *Manager {
	return &Manager{
		url:            cfg.Source.URL,
		authMessage:    cfg.Source.AuthMessage,
		header:         sourceHeader(&cfg.Source),
		pingInterval:   cfg.Source.PingEvery(),
		handshakeDelay: cfg.Source.HandshakeDelay(),
		reconnectDelay: cfg.Source.ReconnectDelay(),
		chatID:         cfg.Telegram.GroupID,
		footer:         cfg.Telegram.Footer,
		buttons:        linkButtons(&cfg.Telegram),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		sender: sender,
		log:    log.With().Str("component", "livesms").Logger(),
	}
}

// sourceHeader builds the connection-time headers the remote expects.
func sourceHeader(cfg *SourceConfig) http.Header {
	h := http.Header{}
	set := func(key, value string) {
		if value != "" {
			h.Set(key, value)
		}
	}
	set("User-Agent", cfg.UserAgent)
	set("Origin", cfg.Origin)
	set("Referer", cfg.Referer)
	set("Host", cfg.Host)
	return h
}

func linkButtons(cfg *TelegramConfig) [][]notify.Button {
	return [][]notify.Button{
		{
			{Text: "📱Numbers", URL: cfg.ChannelURL},
			{Text: "💻 Developer", URL: cfg.DevURL},
		},
		{
			{Text: "🛠 Support", URL: cfg.SupportURL},
		},
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	if old := State(m.state.Swap(int32(s))); old != s {
		m.log.Debug().Stringer("from", old).Stringer("to", s).Msg("Connection state changed")
	}
}

// Start runs the connect loop until ctx is cancelled. Every disconnect is
// followed by the reconnect delay and a new connection; the loop never gives
// up on its own.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info().Str("url", m.url).Msg("Starting livesms connection loop")
	for {
		err := m.runSession(ctx)
		m.setState(StateDisconnected)
		if ctx.Err() != nil {
			m.log.Info().Msg("Connection loop stopped")
			return ctx.Err()
		}
		m.log.Warn().Err(err).
			Dur("retry_in", m.reconnectDelay).
			Msg("WebSocket closed, reconnecting")

		timer := time.NewTimer(m.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.log.Info().Msg("Connection loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session is one live connection. It is discarded on disconnect.
type session struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	joinOnce sync.Once
	joined   chan struct{}
	// joinSent is closed once our join frame is on the wire.
	joinSent chan struct{}
}

func (s *session) write(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (s *session) markJoined() bool {
	first := false
	s.joinOnce.Do(func() {
		close(s.joined)
		first = true
	})
	return first
}

// runSession connects once and blocks until the connection is gone. It
// returns only after the heartbeat and receive loops have exited.
func (m *Manager) runSession(ctx context.Context) error {
	m.stats.connectAttempts.Add(1)
	log := m.log.With().Str("session_id", uuid.NewString()).Logger()

	m.setState(StateConnecting)
	log.Info().Msg("Connecting to livesms websocket")
	conn, resp, err := m.dialer.DialContext(ctx, m.url, m.header.Clone())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		log.Error().Err(err).Int("status", status).Msg("WebSocket connection failed")
		return fmt.Errorf("%w: dial: %w", ErrTransport, err)
	}
	m.stats.sessions.Add(1)
	m.setState(StateHandshaking)
	log.Info().Msg("WebSocket connected")

	s := &session{
		conn:     conn,
		log:      log,
		joined:   make(chan struct{}),
		joinSent: make(chan struct{}),
	}
	sessCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	readErr := make(chan error, 1)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		readErr <- m.receiveLoop(ctx, s)
	}()
	go func() {
		defer wg.Done()
		m.heartbeat(sessCtx, s)
	}()

	hsErr := m.handshake(sessCtx, s)
	if hsErr == nil {
		<-sessCtx.Done()
	}

	// Teardown: stop the heartbeat first, then unblock the reader.
	m.setState(StateDisconnected)
	cancel()
	_ = conn.Close()
	err = <-readErr
	wg.Wait()

	if hsErr != nil && !errors.Is(hsErr, context.Canceled) {
		return hsErr
	}
	return err
}

// handshake sends the namespace join and then the credential frame. The
// credential goes out once the join is acknowledged, or after the handshake
// delay at the latest.
func (m *Manager) handshake(ctx context.Context, s *session) error {
	if err := sleepCtx(ctx, m.handshakeDelay); err != nil {
		return err
	}
	// A join confirmed before our join frame already made the session Active.
	if m.state.CompareAndSwap(int32(StateHandshaking), int32(StateJoinPending)) {
		m.log.Debug().Stringer("from", StateHandshaking).Stringer("to", StateJoinPending).Msg("Connection state changed")
	}
	if err := s.write(livesms.JoinFrame); err != nil {
		return fmt.Errorf("%w: send join: %w", ErrTransport, err)
	}
	close(s.joinSent)
	s.log.Info().Str("frame", livesms.JoinFrame).Msg("Sent namespace join")

	timer := time.NewTimer(m.handshakeDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.joined:
	case <-timer.C:
		s.log.Debug().Msg("Join not acknowledged yet, sending auth anyway")
	}

	if err := s.write(m.authMessage); err != nil {
		return fmt.Errorf("%w: send auth: %w", ErrTransport, err)
	}
	s.log.Info().Msg("Sent auth token")
	return nil
}

// heartbeat sends a heartbeat frame every ping interval while the session
// is Active. It starts counting once the join is confirmed and our own join
// frame has been sent.
func (m *Manager) heartbeat(ctx context.Context, s *session) {
	for _, gate := range []chan struct{}{s.joined, s.joinSent} {
		select {
		case <-ctx.Done():
			return
		case <-gate:
		}
	}

	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil || m.State() != StateActive {
			return
		}
		if err := s.write(livesms.HeartbeatFrame); err != nil {
			s.log.Error().Err(err).Msg("Failed to send ping")
			return
		}
		m.stats.heartbeats.Add(1)
		s.log.Debug().Msg("Ping sent")
	}
}

// receiveLoop reads frames until the connection fails. ctx is the process
// context; it bounds deliveries, not reads.
func (m *Manager) receiveLoop(ctx context.Context, s *session) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			m.setState(StateDisconnected)
			return fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
		m.handleFrame(ctx, s, string(data))
	}
}

// handleFrame dispatches one classified frame.
func (m *Manager) handleFrame(ctx context.Context, s *session, raw string) {
	frame := m.parser.Parse(raw)
	m.stats.countFrame(frame.Kind())

	switch f := frame.(type) {
	case livesms.HeartbeatAck:
		s.log.Debug().Msg("Pong received")
	case livesms.NamespaceJoined:
		m.handleJoined(s)
	case livesms.DataEvent:
		m.relay(ctx, s, f)
	case livesms.ParseError:
		s.log.Warn().Err(f.Err).Str("raw", f.Raw).Msg("Failed to parse data event")
	case livesms.Unrecognized:
		s.log.Trace().Str("raw", f.Raw).Msg("Unrecognized frame")
	}
}

func (m *Manager) handleJoined(s *session) {
	if !m.state.CompareAndSwap(int32(StateJoinPending), int32(StateActive)) &&
		!m.state.CompareAndSwap(int32(StateHandshaking), int32(StateActive)) {
		s.log.Debug().Stringer("state", m.State()).Msg("Ignoring duplicate namespace join")
		return
	}
	if s.markJoined() {
		s.log.Info().Msg("Namespace joined, starting ping")
	}
}

func (m *Manager) relay(ctx context.Context, s *session, evt livesms.DataEvent) {
	n := notify.Notification{
		ChatID:  m.chatID,
		Text:    livesms.FormatAlert(evt.Event, m.footer),
		Buttons: m.buttons,
	}
	res := m.sender.Send(ctx, n)

	log := s.log.With().
		Str("event", evt.Name).
		Str("originator", evt.Event.Originator).
		Str("country", evt.Event.Country).
		Bool("otp_found", evt.Event.OTP != livesms.NoOTP).
		Int("attempts", res.Attempts).
		Int("throttles", res.Throttles).
		Logger()
	if !res.Delivered() {
		m.stats.alertsFailed.Add(1)
		log.Error().Err(res.Err).Msg("Failed to relay OTP alert")
		return
	}
	m.stats.alertsRelayed.Add(1)
	log.Info().Msg("Relayed OTP alert")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
