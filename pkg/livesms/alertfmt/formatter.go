// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package alertfmt converts rendered alert HTML (the Telegram HTML subset)
// to Markdown and to plain text for sinks that do not interpret HTML.
package alertfmt

import (
	"html"
	"regexp"
	"strings"
)

var (
	boldRe      = regexp.MustCompile(`(?s)<(?:b|strong)>(.*?)</(?:b|strong)>`)
	italicRe    = regexp.MustCompile(`(?s)<(?:i|em)>(.*?)</(?:i|em)>`)
	underlineRe = regexp.MustCompile(`(?s)<(?:u|ins)>(.*?)</(?:u|ins)>`)
	strikeRe    = regexp.MustCompile(`(?s)<(?:s|del|strike)>(.*?)</(?:s|del|strike)>`)
	codeRe      = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	preRe       = regexp.MustCompile(`(?s)<pre>(?:<code[^>]*>)?(.*?)(?:</code>)?</pre>`)
	linkRe      = regexp.MustCompile(`<a href="([^"]+)"[^>]*>(.*?)</a>`)
	brRe        = regexp.MustCompile(`<br\s*/?>`)
	tagRe       = regexp.MustCompile(`<[^>]+>`)
)

// ToMarkdown converts alert HTML to Mattermost-flavored Markdown. Entities
// are decoded last, so escaped user text never turns into markup.
func ToMarkdown(text string) string {
	if text == "" {
		return ""
	}

	// Code first so its content is not touched by inline rules.
	text = preRe.ReplaceAllStringFunc(text, func(match string) string {
		return codeBlock(preRe.FindStringSubmatch(match)[1])
	})
	text = codeRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := codeRe.FindStringSubmatch(match)[1]
		if strings.Contains(inner, "\n") {
			return codeBlock(inner)
		}
		return codeSpan(inner)
	})

	text = boldRe.ReplaceAllString(text, "**$1**")
	text = italicRe.ReplaceAllString(text, "_${1}_")
	// Markdown has no underline; emphasis is the closest rendition.
	text = underlineRe.ReplaceAllString(text, "_${1}_")
	text = strikeRe.ReplaceAllString(text, "~~$1~~")

	text = linkRe.ReplaceAllString(text, "[$2]($1)")
	text = brRe.ReplaceAllString(text, "\n")

	text = tagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

// ToPlain strips all markup from alert HTML and decodes entities.
func ToPlain(text string) string {
	if text == "" {
		return ""
	}
	text = brRe.ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

// ToMatrixHTML adapts alert HTML for Matrix clients, which ignore bare
// newlines in formatted bodies.
func ToMatrixHTML(text string) string {
	return strings.ReplaceAll(text, "\n", "<br/>")
}

// longestBacktickRun counts the longest run of backticks in the decoded text.
func longestBacktickRun(text string) int {
	longest, run := 0, 0
	for _, r := range html.UnescapeString(text) {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return longest
}

// codeSpan wraps inner in a backtick fence longer than any run inside it,
// so the content can never close the span early.
func codeSpan(inner string) string {
	n := longestBacktickRun(inner)
	fence := strings.Repeat("`", n+1)
	if n > 0 {
		return fence + " " + inner + " " + fence
	}
	return fence + inner + fence
}

func codeBlock(inner string) string {
	fence := strings.Repeat("`", max(3, longestBacktickRun(inner)+1))
	return fence + "\n" + inner + "\n" + fence
}
