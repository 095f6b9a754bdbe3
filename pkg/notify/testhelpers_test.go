// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// endpointCall records one request received by a fake provider.
type endpointCall struct {
	Method string
	Path   string
	Body   string
	Form   url.Values
	At     time.Time
}

// cannedResponse is one scripted reply of fakeTelegram.
type cannedResponse struct {
	Status int
	Body   string
	Header map[string]string
}

// fakeTelegram wraps an httptest.Server simulating the Bot API. Responses
// are consumed in order; once exhausted every request gets 200 OK.
type fakeTelegram struct {
	Server *httptest.Server

	mu        sync.Mutex
	calls     []endpointCall
	responses []cannedResponse
	// clock, when set, stamps calls instead of the wall clock.
	clock *fakeClock
}

func newFakeTelegram(responses ...cannedResponse) *fakeTelegram {
	f := &fakeTelegram{responses: responses}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeTelegram) Close() {
	f.Server.Close()
}

func (f *fakeTelegram) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	f.mu.Lock()
	at := time.Now()
	if f.clock != nil {
		at = f.clock.Now()
	}
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Body: string(body), Form: form, At: at})
	resp := cannedResponse{Status: http.StatusOK, Body: `{"ok":true,"result":{"message_id":1}}`}
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, resp.Body)
}

func throttled(retryAfter int) cannedResponse {
	body, _ := json.Marshal(map[string]any{
		"ok":          false,
		"error_code":  429,
		"description": "Too Many Requests: retry later",
		"parameters":  map[string]int{"retry_after": retryAfter},
	})
	return cannedResponse{Status: http.StatusTooManyRequests, Body: string(body)}
}

// fakeClock is a manual clock whose Sleep advances time instantly and
// records every requested duration.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]time.Duration, len(c.slept))
	copy(cp, c.slept)
	return cp
}

// newTestSender creates a TelegramSender pointed at fake, driven by clock.
func newTestSender(fake *fakeTelegram, clock *fakeClock) *TelegramSender {
	s := NewTelegramSender(TelegramConfig{
		APIURL:   fake.Server.URL,
		BotToken: "123:test-token",
	}, zerolog.Nop())
	if clock != nil {
		fake.mu.Lock()
		fake.clock = clock
		fake.mu.Unlock()
		s.now = clock.Now
		s.sleep = clock.Sleep
	}
	return s
}

func testNotification() Notification {
	return Notification{
		ChatID: "-100123",
		Text:   "<b>Alert</b>\n<code>123456</code>",
		Buttons: [][]Button{
			{{Text: "📱Numbers", URL: "https://t.me/numbers"}, {Text: "💻 Developer", URL: "https://t.me/dev"}},
			{{Text: "🛠 Support", URL: "https://t.me/support"}},
		},
	}
}

// recordingSender is a Sender double for dispatcher tests.
type recordingSender struct {
	mu     sync.Mutex
	sent   []Notification
	result Result
}

func (r *recordingSender) Send(_ context.Context, n Notification) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.result
}

// recordingMirror is a Mirror double that can be told to fail.
type recordingMirror struct {
	name string
	err  error
	// stall makes Mirror block until its context is done.
	stall bool

	mu       sync.Mutex
	mirrored []Notification
}

func (r *recordingMirror) Name() string { return r.name }

func (r *recordingMirror) Mirror(ctx context.Context, n Notification) error {
	r.mu.Lock()
	r.mirrored = append(r.mirrored, n)
	r.mu.Unlock()
	if r.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

func (r *recordingMirror) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mirrored)
}

func hasPathSuffix(calls []endpointCall, suffix string) bool {
	for _, c := range calls {
		if strings.HasSuffix(c.Path, suffix) {
			return true
		}
	}
	return false
}
