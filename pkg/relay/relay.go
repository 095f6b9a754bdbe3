// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/livesms-relay/pkg/notify"
)

// Relay wires the source connection to the alert sender and the health
// server.
type Relay struct {
	Manager *Manager
	Health  *HealthServer

	log zerolog.Logger
}

// New builds the Telegram sender, any enabled mirrors, the connection
// manager and the health server from cfg.
func New(cfg *Config, log zerolog.Logger) (*Relay, error) {
	sender, err := newSender(cfg, log)
	if err != nil {
		return nil, err
	}
	mgr := NewManager(cfg, sender, log)
	return &Relay{
		Manager: mgr,
		Health:  NewHealthServer(cfg.Health.ListenAddr(), mgr, log),
		log:     log,
	}, nil
}

func newSender(cfg *Config, log zerolog.Logger) (notify.Sender, error) {
	primary := notify.NewTelegramSender(notify.TelegramConfig{
		APIURL:      cfg.Telegram.APIURL,
		BotToken:    cfg.Telegram.BotToken,
		MinInterval: cfg.Telegram.MinInterval(),
	}, log)

	var mirrors []notify.Mirror
	if cfg.Mattermost.ServerURL != "" {
		mirrors = append(mirrors, notify.NewMattermostMirror(cfg.Mattermost.ServerURL, cfg.Mattermost.Token, cfg.Mattermost.ChannelID))
		log.Info().Str("server_url", cfg.Mattermost.ServerURL).Msg("Mattermost mirror enabled")
	}
	if cfg.Matrix.HomeserverURL != "" {
		mx, err := notify.NewMatrixMirror(cfg.Matrix.HomeserverURL, cfg.Matrix.UserID, cfg.Matrix.AccessToken, cfg.Matrix.RoomID, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create matrix mirror: %w", err)
		}
		mirrors = append(mirrors, mx)
		log.Info().Str("homeserver_url", cfg.Matrix.HomeserverURL).Msg("Matrix mirror enabled")
	}
	if len(mirrors) == 0 {
		return primary, nil
	}
	return notify.NewDispatcher(primary, log, mirrors...), nil
}

// Run starts the connection manager and the health server and blocks until
// ctx is cancelled or the health server fails. Cancellation is a clean stop
// and returns nil.
func (r *Relay) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Manager.Start(gctx)
	})
	g.Go(func() error {
		return r.Health.Run(gctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
