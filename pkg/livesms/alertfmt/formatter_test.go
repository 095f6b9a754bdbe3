// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package alertfmt

import (
	"strings"
	"testing"
)

func TestToMarkdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "hello", "hello"},
		{"bold", "<b>bold</b> text", "**bold** text"},
		{"strong", "<strong>bold</strong>", "**bold**"},
		{"italic", "<i>it</i>", "_it_"},
		{"underline", "<u>under</u>", "_under_"},
		{"nested bold underline", "<b><u>Alert</u></b>", "**_Alert_**"},
		{"strike", "<s>gone</s>", "~~gone~~"},
		{"inline code", "<code>123456</code>", "`123456`"},
		{"multiline code", "<code>line1\nline2</code>", "```\nline1\nline2\n```"},
		{"pre", "<pre>block</pre>", "```\nblock\n```"},
		{"link", `<a href="https://example.com">site</a>`, "[site](https://example.com)"},
		{"line break", "a<br/>b", "a\nb"},
		{"entities decoded", "<code>a &lt;b&gt; &amp; c</code>", "`a <b> & c`"},
		{"unknown tags stripped", "<span>x</span>", "x"},
		{"backtick in inline code", "<code>a`b</code>", "`` a`b ``"},
		{"backtick run in inline code", "<code>x ``` y</code>", "```` x ``` y ````"},
		{"fence in code block", "<code>a\n```\nb</code>", "````\na\n```\nb\n````"},
		{"fence in pre", "<pre>```</pre>", "````\n```\n````"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ToMarkdown(tt.input); got != tt.want {
				t.Errorf("ToMarkdown(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToMarkdown_EscapedMarkupStaysText(t *testing.T) {
	t.Parallel()
	// Escaped user input must not be converted into Markdown formatting.
	got := ToMarkdown("<code>&lt;b&gt;x&lt;/b&gt;</code>")
	if strings.Contains(got, "**") {
		t.Errorf("escaped tags were formatted: %q", got)
	}
	if got != "`<b>x</b>`" {
		t.Errorf("got %q", got)
	}
}

func TestToPlain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"<b>Country:</b> <code>US</code>", "Country: US"},
		{"a<br>b", "a\nb"},
		{"<code>&quot;quoted&quot; &amp;</code>", `"quoted" &`},
		{"  <i>trim</i>\n", "trim"},
	}
	for _, tt := range tests {
		if got := ToPlain(tt.input); got != tt.want {
			t.Errorf("ToPlain(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToMatrixHTML(t *testing.T) {
	t.Parallel()
	got := ToMatrixHTML("<b>a</b>\nb\n")
	if got != "<b>a</b><br/>b<br/>" {
		t.Errorf("ToMatrixHTML: got %q", got)
	}
}

func TestToMarkdown_BacktickCannotEscapeCodeSpan(t *testing.T) {
	t.Parallel()
	// An untrusted message tries to close the code span and inject a link.
	got := ToMarkdown("<code>code` [click](https://evil.example) `x</code>")
	want := "`` code` [click](https://evil.example) `x ``"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
