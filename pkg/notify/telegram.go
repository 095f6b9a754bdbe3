// Copyright 2024-2026 Aiku AI

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultTelegramAPIURL is the public Bot API endpoint.
	DefaultTelegramAPIURL = "https://api.telegram.org"
	// DefaultMinInterval is the minimum spacing between successful sends.
	DefaultMinInterval = 1200 * time.Millisecond
	// defaultRetryAfter applies when a 429 response names no delay.
	defaultRetryAfter = time.Second
	// maxErrorBody bounds how much of an error response is read and logged.
	maxErrorBody = 4 << 10
)

// TelegramConfig configures a TelegramSender.
type TelegramConfig struct {
	APIURL      string
	BotToken    string
	MinInterval time.Duration
	HTTPClient  *http.Client
}

// TelegramSender posts notifications to the Bot API sendMessage method.
//
// Sends are serialized: a call holds the sender until it is delivered or has
// failed, including every throttle retry. Consecutive successful sends are
// spaced at least MinInterval apart; the caller blocks until the spacing is
// satisfied.
type TelegramSender struct {
	apiURL      string
	token       string
	minInterval time.Duration
	client      *http.Client
	log         zerolog.Logger

	mu       sync.Mutex
	lastSent time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var _ Sender = (*TelegramSender)(nil)

// NewTelegramSender creates a sender. Zero config fields take defaults.
func NewTelegramSender(cfg TelegramConfig, log zerolog.Logger) *TelegramSender {
	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultTelegramAPIURL
	}
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TelegramSender{
		apiURL:      apiURL,
		token:       cfg.BotToken,
		minInterval: minInterval,
		client:      client,
		log:         log.With().Str("component", "telegram").Logger(),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Send delivers n, waiting out spacing and any number of 429 responses.
// Other non-200 responses and transport errors fail without retry.
func (s *TelegramSender) Send(ctx context.Context, n Notification) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	form, err := sendMessageForm(n)
	if err != nil {
		return Result{Status: StatusFailed, Err: fmt.Errorf("%w: %w", ErrDeliveryFailed, err)}
	}
	log := s.log.With().Str("chat_id", n.ChatID).Logger()

	var res Result
	for {
		if err := s.waitSpacing(ctx); err != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("%w: waiting for send spacing: %w", ErrDeliveryFailed, err)
			return res
		}

		res.Attempts++
		status, header, body, err := s.post(ctx, form)
		if err != nil {
			log.Error().Err(err).Int("attempt", res.Attempts).Msg("Telegram send failed")
			res.Status = StatusFailed
			res.Err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
			return res
		}

		switch status {
		case http.StatusOK:
			s.lastSent = s.now()
			res.Status = StatusDelivered
			log.Info().
				Int("attempts", res.Attempts).
				Int("throttles", res.Throttles).
				Msg("Alert delivered")
			return res

		case http.StatusTooManyRequests:
			res.Throttles++
			throttle := &ThrottledError{
				RetryAfter:  retryAfter(header, body),
				Description: gjson.GetBytes(body, "description").String(),
			}
			log.Warn().
				Err(throttle).
				Int("attempt", res.Attempts).
				Dur("retry_after", throttle.RetryAfter).
				Msg("Rate limit hit, retrying")
			if err := s.sleep(ctx, throttle.RetryAfter); err != nil {
				res.Status = StatusFailed
				res.Err = fmt.Errorf("%w: %w: %w", ErrDeliveryFailed, throttle, err)
				return res
			}

		default:
			log.Error().
				Int("status", status).
				Str("response", string(body)).
				Msg("Telegram API error")
			res.Status = StatusFailed
			res.Err = fmt.Errorf("%w: status %d: %s", ErrDeliveryFailed, status, describe(body))
			return res
		}
	}
}

func (s *TelegramSender) waitSpacing(ctx context.Context) error {
	if s.lastSent.IsZero() {
		return nil
	}
	wait := s.minInterval - s.now().Sub(s.lastSent)
	if wait <= 0 {
		return nil
	}
	s.log.Debug().Dur("wait", wait).Msg("Spacing outbound send")
	return s.sleep(ctx, wait)
}

func (s *TelegramSender) post(ctx context.Context, form url.Values) (int, http.Header, []byte, error) {
	endpoint := s.apiURL + "/bot" + s.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", redactToken(err, s.token))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("http error: %w", redactToken(err, s.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// sendMessageForm builds the form-encoded sendMessage request.
func sendMessageForm(n Notification) (url.Values, error) {
	form := url.Values{}
	form.Set("chat_id", n.ChatID)
	form.Set("text", n.Text)
	form.Set("parse_mode", "HTML")

	if rows := n.LinkRows(); len(rows) > 0 {
		markup, err := json.Marshal(map[string][][]Button{"inline_keyboard": rows})
		if err != nil {
			return nil, fmt.Errorf("failed to encode reply markup: %w", err)
		}
		form.Set("reply_markup", string(markup))
	}
	return form, nil
}

// retryAfter reads the provider delay from parameters.retry_after, falling
// back to the Retry-After header and then to one second.
func retryAfter(header http.Header, body []byte) time.Duration {
	if v := gjson.GetBytes(body, "parameters.retry_after"); v.Exists() && v.Int() >= 0 {
		return time.Duration(v.Int()) * time.Second
	}
	if secs, err := strconv.Atoi(header.Get("Retry-After")); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultRetryAfter
}

func describe(body []byte) string {
	if d := gjson.GetBytes(body, "description"); d.Exists() {
		return d.String()
	}
	return strings.TrimSpace(string(body))
}

// redactToken strips the bot token from transport errors, which embed the
// request URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }
