// Copyright 2024-2026 Aiku AI

package livesms

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Wire vocabulary of the livesms namespace.
const (
	Namespace = "/livesms"

	HeartbeatFrame  = "3"
	JoinFrame       = "40" + Namespace
	DataEventPrefix = "42" + Namespace + ","
)

// Defaults applied when a data event omits a field.
const (
	DefaultOriginator = "Unknown"
	DefaultRecipient  = "Unknown"
	DefaultCountry    = "??"
)

// ErrMalformedPayload is wrapped by every ParseError produced for a data
// event whose payload does not have the expected shape.
var ErrMalformedPayload = errors.New("malformed data event payload")

// Kind names a frame variant. It is used for logging and counters.
type Kind string

const (
	KindHeartbeatAck    Kind = "heartbeat_ack"
	KindNamespaceJoined Kind = "namespace_joined"
	KindDataEvent       Kind = "data_event"
	KindUnrecognized    Kind = "unrecognized"
	KindParseError      Kind = "parse_error"
)

// Frame is the result of classifying one inbound text frame. The concrete
// type is always one of HeartbeatAck, NamespaceJoined, DataEvent,
// Unrecognized or ParseError.
type Frame interface {
	Kind() Kind
	isFrame()
}

// HeartbeatAck is the server's answer to a heartbeat.
type HeartbeatAck struct{}

// NamespaceJoined confirms that the server accepted the namespace join.
type NamespaceJoined struct {
	// Raw is the full frame, which may carry a session payload after the
	// namespace name.
	Raw string
}

// DataEvent carries one parsed SMS notification.
type DataEvent struct {
	// Name is the event name, the first element of the payload array.
	Name  string
	Event OTPEvent
}

// Unrecognized is any frame outside the known vocabulary.
type Unrecognized struct {
	Raw string
}

// ParseError is a data event that could not be decoded.
type ParseError struct {
	Raw string
	Err error
}

func (HeartbeatAck) Kind() Kind    { return KindHeartbeatAck }
func (NamespaceJoined) Kind() Kind { return KindNamespaceJoined }
func (DataEvent) Kind() Kind       { return KindDataEvent }
func (Unrecognized) Kind() Kind    { return KindUnrecognized }
func (ParseError) Kind() Kind      { return KindParseError }

func (HeartbeatAck) isFrame()    {}
func (NamespaceJoined) isFrame() {}
func (DataEvent) isFrame()       {}
func (Unrecognized) isFrame()    {}
func (ParseError) isFrame()      {}

func (e ParseError) Error() string {
	return e.Err.Error()
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// OTPEvent is the structured content of a data event.
type OTPEvent struct {
	Originator string
	Recipient  string
	// Country is the two-letter ISO code, upper-cased.
	Country    string
	Message    string
	OTP        string
	ReceivedAt time.Time
}

// Parser classifies frames. The zero value is ready to use and stamps
// events with the wall clock.
type Parser struct {
	// Now overrides the clock used for OTPEvent.ReceivedAt.
	Now func() time.Time
}

// Parse classifies a raw frame using a zero Parser.
func Parse(raw string) Frame {
	var p Parser
	return p.Parse(raw)
}

// Parse classifies a raw frame by its literal prefix and decodes data events.
// It never panics; anything it does not understand is Unrecognized.
func (p *Parser) Parse(raw string) Frame {
	switch {
	case raw == HeartbeatFrame:
		return HeartbeatAck{}
	case strings.HasPrefix(raw, JoinFrame):
		return NamespaceJoined{Raw: raw}
	case strings.HasPrefix(raw, DataEventPrefix):
		return p.parseDataEvent(raw)
	default:
		return Unrecognized{Raw: raw}
	}
}

func (p *Parser) parseDataEvent(raw string) Frame {
	payload := raw[len(DataEventPrefix):]
	if !gjson.Valid(payload) {
		return ParseError{Raw: raw, Err: fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)}
	}

	data := gjson.Parse(payload)
	if !data.IsArray() {
		return ParseError{Raw: raw, Err: fmt.Errorf("%w: expected array, got %s", ErrMalformedPayload, data.Type)}
	}
	elems := data.Array()
	if len(elems) < 2 {
		return ParseError{Raw: raw, Err: fmt.Errorf("%w: expected at least 2 elements, got %d", ErrMalformedPayload, len(elems))}
	}
	sms := elems[1]
	if !sms.IsObject() {
		return ParseError{Raw: raw, Err: fmt.Errorf("%w: second element is not an object", ErrMalformedPayload)}
	}

	msg := field(sms, "message", "")
	evt := OTPEvent{
		Originator: field(sms, "originator", DefaultOriginator),
		Recipient:  field(sms, "recipient", DefaultRecipient),
		Country:    strings.ToUpper(field(sms, "country_iso", DefaultCountry)),
		Message:    msg,
		OTP:        ExtractOTP(msg),
		ReceivedAt: p.now(),
	}
	return DataEvent{Name: elems[0].String(), Event: evt}
}

// field returns the value of key as text. Missing keys and JSON null fall
// back to def; numbers keep their literal form.
func field(obj gjson.Result, key, def string) string {
	v := obj.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return def
	}
	return v.String()
}

func (p *Parser) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
