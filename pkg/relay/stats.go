// Copyright 2024-2026 Aiku AI

package relay

import (
	"sync/atomic"

	"github.com/aiku/livesms-relay/pkg/livesms"
)

// Stats is a point-in-time snapshot of connection and relay counters.
type Stats struct {
	State           State `json:"-"`
	ConnectAttempts int64 `json:"connect_attempts"`
	Sessions        int64 `json:"sessions"`
	Heartbeats      int64 `json:"heartbeats"`
	HeartbeatAcks   int64 `json:"heartbeat_acks"`
	Joins           int64 `json:"joins"`
	DataEvents      int64 `json:"data_events"`
	ParseErrors     int64 `json:"parse_errors"`
	Unrecognized    int64 `json:"unrecognized"`
	AlertsRelayed   int64 `json:"alerts_relayed"`
	AlertsFailed    int64 `json:"alerts_failed"`
}

type managerStats struct {
	connectAttempts atomic.Int64
	sessions        atomic.Int64
	heartbeats      atomic.Int64
	heartbeatAcks   atomic.Int64
	joins           atomic.Int64
	dataEvents      atomic.Int64
	parseErrors     atomic.Int64
	unrecognized    atomic.Int64
	alertsRelayed   atomic.Int64
	alertsFailed    atomic.Int64
}

func (s *managerStats) countFrame(k livesms.Kind) {
	switch k {
	case livesms.KindHeartbeatAck:
		s.heartbeatAcks.Add(1)
	case livesms.KindNamespaceJoined:
		s.joins.Add(1)
	case livesms.KindDataEvent:
		s.dataEvents.Add(1)
	case livesms.KindParseError:
		s.parseErrors.Add(1)
	case livesms.KindUnrecognized:
		s.unrecognized.Add(1)
	}
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		State:           m.State(),
		ConnectAttempts: m.stats.connectAttempts.Load(),
		Sessions:        m.stats.sessions.Load(),
		Heartbeats:      m.stats.heartbeats.Load(),
		HeartbeatAcks:   m.stats.heartbeatAcks.Load(),
		Joins:           m.stats.joins.Load(),
		DataEvents:      m.stats.dataEvents.Load(),
		ParseErrors:     m.stats.parseErrors.Load(),
		Unrecognized:    m.stats.unrecognized.Load(),
		AlertsRelayed:   m.stats.alertsRelayed.Load(),
		AlertsFailed:    m.stats.alertsFailed.Load(),
	}
}
