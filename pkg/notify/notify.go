// Copyright 2024-2026 Aiku AI

// Package notify delivers rendered OTP alerts to chat destinations.
//
// The Telegram Bot API is the primary destination and the only one with
// spacing and throttle handling ([TelegramSender]). Mattermost and Matrix
// mirrors are optional, best-effort copies driven by the same
// [Notification].
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrDeliveryFailed is wrapped by every non-retryable delivery failure.
var ErrDeliveryFailed = errors.New("delivery failed")

// ThrottledError describes a rate-limit response from a provider.
type ThrottledError struct {
	RetryAfter  time.Duration
	Description string
}

func (e *ThrottledError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("throttled, retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("throttled, retry after %s: %s", e.RetryAfter, e.Description)
}

// Button is a single link button shown below an alert.
type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Notification is one outbound alert. Text is HTML in the Telegram subset.
type Notification struct {
	ChatID  string
	Text    string
	Buttons [][]Button
}

// LinkRows returns the button rows with empty-URL buttons and empty rows
// removed.
func (n Notification) LinkRows() [][]Button {
	var rows [][]Button
	for _, row := range n.Buttons {
		var kept []Button
		for _, b := range row {
			if b.URL != "" {
				kept = append(kept, b)
			}
		}
		if len(kept) > 0 {
			rows = append(rows, kept)
		}
	}
	return rows
}

// Status is the outcome of a send.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Result reports how a send ended. Attempts counts provider requests,
// Throttles counts rate-limit responses waited out along the way.
type Result struct {
	Status    Status
	Attempts  int
	Throttles int
	Err       error
}

// Delivered reports whether the notification reached the provider.
func (r Result) Delivered() bool {
	return r.Status == StatusDelivered
}

// Sender is a primary delivery destination.
type Sender interface {
	Send(ctx context.Context, n Notification) Result
}

// Mirror is a best-effort secondary destination.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, n Notification) error
}

// DefaultMirrorTimeout bounds each mirror call.
const DefaultMirrorTimeout = 10 * time.Second

// Dispatcher sends every notification to the primary sender and then copies
// it to each mirror in order. Mirror failures are logged and never change
// the returned Result. Each mirror call is cut off after the mirror timeout.
type Dispatcher struct {
	primary       Sender
	mirrors       []Mirror
	mirrorTimeout time.Duration
	log           zerolog.Logger
}

var _ Sender = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher around primary.
func NewDispatcher(primary Sender, log zerolog.Logger, mirrors ...Mirror) *Dispatcher {
	return &Dispatcher{
		primary:       primary,
		mirrors:       mirrors,
		mirrorTimeout: DefaultMirrorTimeout,
		log:           log.With().Str("component", "dispatcher").Logger(),
	}
}

// Send delivers n to the primary sender and all mirrors.
func (d *Dispatcher) Send(ctx context.Context, n Notification) Result {
	res := d.primary.Send(ctx, n)
	for _, m := range d.mirrors {
		if err := d.mirror(ctx, m, n); err != nil {
			d.log.Warn().Err(err).Str("mirror", m.Name()).Msg("Failed to mirror alert")
			continue
		}
		d.log.Debug().Str("mirror", m.Name()).Msg("Mirrored alert")
	}
	return res
}

// SetMirrorTimeout changes the per-mirror deadline. Zero or negative values
// are ignored.
func (d *Dispatcher) SetMirrorTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.mirrorTimeout = timeout
	}
}

func (d *Dispatcher) mirror(ctx context.Context, m Mirror, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.mirrorTimeout)
	defer cancel()
	return m.Mirror(ctx, n)
}

// sleepCtx waits for d or until ctx is done.
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
