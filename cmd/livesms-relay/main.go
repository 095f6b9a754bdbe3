// Copyright 2024-2026 Aiku AI

// Command livesms-relay listens to the livesms OTP event socket and relays
// every received SMS as a formatted alert to a Telegram chat, optionally
// mirroring it to Mattermost and Matrix.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "maunium.net/go/mauflag"

	"github.com/aiku/livesms-relay/pkg/relay"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const name = "livesms-relay"

var configPath = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
var envPath = flag.MakeFull("e", "env-file", "Optional .env file loaded before the environment overrides.", ".env").String()
var printVersion = flag.MakeFull("v", "version", "View version and quit.", "false").Bool()
var generateConfig = flag.MakeFull("g", "generate-example-config", "Print the example config and quit.", "false").Bool()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	flag.SetHelpTitles(
		name+" - Real-time OTP relay from livesms to Telegram.",
		name+" [-hvg] [-c <path>] [-e <path>]",
	)
	if err := flag.Parse(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	} else if *printVersion {
		fmt.Printf("%s %s (commit %s, built %s)\n", name, Tag, Commit, BuildTime)
		os.Exit(0)
	} else if *generateConfig {
		fmt.Print(relay.ExampleConfig)
		os.Exit(0)
	}

	envLoaded := relay.LoadEnvFile(*envPath)
	cfg, err := relay.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, logCloser := relay.NewLogger(&cfg.Logging, os.Stderr)
	defer logCloser.Close()
	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Bool("env_file", envLoaded).
		Msg("Starting " + name)

	r, err := relay.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize relay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := r.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Relay stopped with error")
		_ = logCloser.Close()
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}
