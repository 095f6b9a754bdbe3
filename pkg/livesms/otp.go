// Copyright 2024-2026 Aiku AI

package livesms

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// NoOTP is returned by ExtractOTP when the message holds no code.
const NoOTP = "N/A"

// MaskGlyph replaces every hidden character of a masked recipient.
const MaskGlyph = "⁕"

// visibleSuffix is the number of trailing recipient characters left visible.
const visibleSuffix = 4

// The split "ddd-ddd"/"ddd ddd" form is tried before the plain six-digit one.
var otpRe = regexp.MustCompile(`\b\d{3}[- ]?\d{3}\b|\b\d{6}\b`)

// ExtractOTP returns the first OTP-looking token in msg, or NoOTP.
func ExtractOTP(msg string) string {
	if m := otpRe.FindString(msg); m != "" {
		return m
	}
	return NoOTP
}

// MaskRecipient hides all but the last four characters of recipient,
// preserving its length in characters. Recipients of four characters or
// fewer are returned unchanged.
func MaskRecipient(recipient string) string {
	n := utf8.RuneCountInString(recipient)
	if n <= visibleSuffix {
		return recipient
	}
	hidden := n - visibleSuffix
	// Byte offset of the first visible rune.
	cut := 0
	for i := 0; i < hidden; i++ {
		_, size := utf8.DecodeRuneInString(recipient[cut:])
		cut += size
	}
	return strings.Repeat(MaskGlyph, hidden) + recipient[cut:]
}
