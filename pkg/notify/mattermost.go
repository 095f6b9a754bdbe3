// Copyright 2024-2026 Aiku AI

package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/livesms-relay/pkg/livesms/alertfmt"
)

// MattermostMirror posts a Markdown rendition of each alert to a channel.
type MattermostMirror struct {
	client    *model.Client4
	channelID string
}

var _ Mirror = (*MattermostMirror)(nil)

// NewMattermostMirror creates a mirror authenticated with a bot or personal
// access token.
func NewMattermostMirror(serverURL, token, channelID string) *MattermostMirror {
	client := model.NewAPIv4Client(serverURL)
	client.HTTPClient = &http.Client{Timeout: DefaultMirrorTimeout}
	client.SetToken(token)
	return &MattermostMirror{client: client, channelID: channelID}
}

func (m *MattermostMirror) Name() string {
	return "mattermost"
}

// Mirror creates one post in the configured channel.
func (m *MattermostMirror) Mirror(ctx context.Context, n Notification) error {
	post := &model.Post{
		ChannelId: m.channelID,
		Message:   mattermostMessage(n),
	}
	_, resp, err := m.client.CreatePost(ctx, post)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("%w: mattermost create post (status %d): %w", ErrDeliveryFailed, status, err)
	}
	return nil
}

// mattermostMessage renders the alert as Markdown with the link buttons as
// a trailing line of links per row.
func mattermostMessage(n Notification) string {
	var b strings.Builder
	b.WriteString(alertfmt.ToMarkdown(n.Text))
	for _, row := range n.LinkRows() {
		links := make([]string, 0, len(row))
		for _, btn := range row {
			links = append(links, "["+btn.Text+"]("+btn.URL+")")
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(links, " · "))
	}
	return b.String()
}
