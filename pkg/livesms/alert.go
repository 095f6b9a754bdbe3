// Copyright 2024-2026 Aiku AI

package livesms

import (
	"html"
	"strings"
)

// TimeLayout is the receipt time format used in alerts (local time).
const TimeLayout = "15:04:05"

// AlertSeparator bounds the sections of a rendered alert.
const AlertSeparator = "━━━━━━━━━━━━━━━━━━━━"

// DefaultFooter closes every alert unless overridden.
const DefaultFooter = "📡 <i>Real-time OTP relay</i>"

// FormatAlert renders evt as an HTML alert for a markup-interpreting chat.
// Every field taken from the event is HTML-escaped. footer is trusted markup
// and is appended verbatim; an empty footer omits the closing section.
func FormatAlert(evt OTPEvent, footer string) string {
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(label)
		b.WriteString(" <code>")
		b.WriteString(html.EscapeString(value))
		b.WriteString("</code>\n")
	}

	b.WriteString("🔔 <b><u>Real-Time OTP Alert</u></b>\n")
	b.WriteString(AlertSeparator + "\n")
	line("🌐 <b>Country:</b>", evt.Country)
	line("🪪 <b>Originator:</b>", evt.Originator)
	line("🔢 <b>OTP Code:</b>", evt.OTP)
	line("⏰ <b>Received At:</b>", evt.ReceivedAt.Local().Format(TimeLayout))
	line("📱 <b>Recipient:</b>", MaskRecipient(evt.Recipient))
	line("⚙️ <b>Service:</b>", evt.Originator)
	b.WriteString(AlertSeparator + "\n")
	b.WriteString("📝 <b>Full Message:</b>\n")
	b.WriteString("<code>")
	b.WriteString(html.EscapeString(evt.Message))
	b.WriteString("</code>")
	if footer != "" {
		b.WriteString("\n" + AlertSeparator + "\n")
		b.WriteString(footer)
	}
	return b.String()
}
