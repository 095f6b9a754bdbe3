// Copyright 2024-2026 Aiku AI

// Package relay runs the livesms OTP relay.
//
// [Manager] keeps one websocket connection to the livesms source alive:
// it performs the namespace join and auth handshake, sends heartbeats while
// the session is active, and reconnects after every disconnect. Each data
// event is rendered with [livesms.FormatAlert] and delivered through a
// [notify.Sender] before the next frame is read.
//
// [HealthServer] answers liveness probes on / and /health and exposes
// connection counters on /stats.
//
// Configuration is YAML merged over the embedded example config, with
// environment overrides applied on top (see [Config.ApplyEnv]).
package relay
