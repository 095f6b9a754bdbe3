// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aiku/livesms-relay/pkg/notify"
)

const testAuth = `42/livesms,["auth","test-token"]`

// fakeSource is a websocket server standing in for the livesms socket.
// Every accepted connection is published on Conns.
type fakeSource struct {
	Server *httptest.Server
	Conns  chan *sourceConn

	mu      sync.Mutex
	headers []http.Header
	hosts   []string
	open    []*sourceConn
}

// sourceConn is the server side of one relay connection. Frames written by
// the relay arrive on Frames, which is closed when the connection ends.
type sourceConn struct {
	conn   *websocket.Conn
	Frames chan string
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	f := &fakeSource{Conns: make(chan *sourceConn, 16)}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &sourceConn{conn: conn, Frames: make(chan string, 64)}
		f.mu.Lock()
		f.headers = append(f.headers, r.Header.Clone())
		f.hosts = append(f.hosts, r.Host)
		f.open = append(f.open, sc)
		f.mu.Unlock()
		f.Conns <- sc

		defer close(sc.Frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			sc.Frames <- string(data)
		}
	}))
	t.Cleanup(f.Server.Close)
	t.Cleanup(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, sc := range f.open {
			_ = sc.conn.Close()
		}
	})
	return f
}

func (f *fakeSource) URL() string {
	return "ws" + strings.TrimPrefix(f.Server.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

func (f *fakeSource) Header(i int) (http.Header, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[i], f.hosts[i]
}

// Accept waits for the next relay connection.
func (f *fakeSource) Accept(t *testing.T) *sourceConn {
	t.Helper()
	select {
	case sc := <-f.Conns:
		return sc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func (sc *sourceConn) Send(t *testing.T, frame string) {
	t.Helper()
	if err := sc.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write %q: %v", frame, err)
	}
}

// Next returns the next frame sent by the relay.
func (sc *sourceConn) Next(t *testing.T) string {
	t.Helper()
	select {
	case frame, ok := <-sc.Frames:
		if !ok {
			t.Fatal("connection closed while waiting for a frame")
		}
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

// Quiet asserts that the relay sends nothing for d.
func (sc *sourceConn) Quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case frame, ok := <-sc.Frames:
		if ok {
			t.Fatalf("unexpected frame %q", frame)
		}
	case <-time.After(d):
	}
}

// Handshake consumes the join and auth frames, acknowledging the join.
func (sc *sourceConn) Handshake(t *testing.T) {
	t.Helper()
	if got := sc.Next(t); got != "40/livesms" {
		t.Fatalf("first frame: got %q, want join", got)
	}
	sc.Send(t, `40/livesms,{"sid":"abc"}`)
	if got := sc.Next(t); got != testAuth {
		t.Fatalf("second frame: got %q, want auth", got)
	}
}

// recordingSender records notifications. Delay simulates a slow destination.
type recordingSender struct {
	mu     sync.Mutex
	sent   []notify.Notification
	delay  time.Duration
	result notify.Result
}

func (s *recordingSender) Send(ctx context.Context, n notify.Notification) notify.Result {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	if s.result.Status == "" {
		return notify.Result{Status: notify.StatusDelivered, Attempts: 1}
	}
	return s.result
}

func (s *recordingSender) Sent() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]notify.Notification, len(s.sent))
	copy(cp, s.sent)
	return cp
}

func testConfig(url string) *Config {
	return &Config{
		Source: SourceConfig{
			URL:          url,
			AuthMessage:  testAuth,
			PingInterval: 25,
			Origin:       "https://ivasms.com",
			Referer:      "https://ivasms.com/",
			Host:         "ivasms.com",
			UserAgent:    "Mozilla/5.0",
		},
		Telegram: TelegramConfig{
			GroupID:    "-1001",
			Footer:     "footer",
			ChannelURL: "https://t.me/numbers",
			DevURL:     "https://t.me/dev",
			SupportURL: "https://t.me/support",
		},
		Health: HealthConfig{Port: 8080},
	}
}

// newTestManager returns a manager with short timings for tests.
func newTestManager(url string, sender notify.Sender) *Manager {
	m := NewManager(testConfig(url), sender, zerolog.Nop())
	m.pingInterval = 50 * time.Millisecond
	m.handshakeDelay = 20 * time.Millisecond
	m.reconnectDelay = 30 * time.Millisecond
	return m
}

// startManager runs m until the test ends and returns Start's result channel.
func startManager(t *testing.T, m *Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("manager did not stop")
		}
	})
	return cancel, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
