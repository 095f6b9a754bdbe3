// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/livesms-relay/pkg/livesms/alertfmt"
)

// MatrixMirror sends each alert to a Matrix room as an HTML notice.
type MatrixMirror struct {
	client *mautrix.Client
	roomID id.RoomID
}

var _ Mirror = (*MatrixMirror)(nil)

// NewMatrixMirror creates a mirror for roomID using an existing access token.
func NewMatrixMirror(homeserverURL, userID, accessToken, roomID string, log zerolog.Logger) (*MatrixMirror, error) {
	client, err := mautrix.NewClient(homeserverURL, id.UserID(userID), accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	client.Log = log.With().Str("component", "matrix").Logger()
	return &MatrixMirror{client: client, roomID: id.RoomID(roomID)}, nil
}

func (m *MatrixMirror) Name() string {
	return "matrix"
}

// Mirror sends one m.notice event to the room.
func (m *MatrixMirror) Mirror(ctx context.Context, n Notification) error {
	_, err := m.client.SendMessageEvent(ctx, m.roomID, event.EventMessage, matrixContent(n))
	if err != nil {
		return fmt.Errorf("%w: matrix send: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func matrixContent(n Notification) *event.MessageEventContent {
	body := alertfmt.ToPlain(n.Text)
	formatted := alertfmt.ToMatrixHTML(n.Text)

	for _, row := range n.LinkRows() {
		plain := make([]string, 0, len(row))
		links := make([]string, 0, len(row))
		for _, btn := range row {
			plain = append(plain, btn.Text+": "+btn.URL)
			links = append(links, `<a href="`+html.EscapeString(btn.URL)+`">`+html.EscapeString(btn.Text)+`</a>`)
		}
		body += "\n" + strings.Join(plain, " | ")
		formatted += "<br/>" + strings.Join(links, " · ")
	}

	return &event.MessageEventContent{
		MsgType:       event.MsgNotice,
		Body:          body,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
}
