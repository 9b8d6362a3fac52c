// Copyright 2025-2026 Ferdi Gartner
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command wa-telegram-bridge relays conversations between a paired WhatsApp
// account and a Telegram forum supergroup, one topic per conversation. The
// bridge core lives in pkg/bridge; this binary only wires configuration,
// logging, storage and the two network shims together.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ferdiga/wa-telegram-bridge/pkg/bridge"
	"github.com/ferdiga/wa-telegram-bridge/pkg/storage"
	"github.com/ferdiga/wa-telegram-bridge/pkg/telegram"
	"github.com/ferdiga/wa-telegram-bridge/pkg/whatsapp"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := bridge.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}
	log.Info().Str("tag", Tag).Str("commit", Commit).Str("build_time", BuildTime).Msg("Starting wa-telegram-bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer db.Close()

	wa, err := whatsapp.New(ctx, cfg.WhatsApp.SessionPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create WhatsApp client")
	}
	tg, err := telegram.New(cfg.Telegram.Token, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}
	if err := tg.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start Telegram polling")
	}

	b := bridge.New(cfg, wa, tg, db, log)
	if err := b.Start(ctx); err != nil {
		// Configuration errors leave the process alive but inert, so the
		// operator can inspect logs in the deployment environment.
		log.Error().Err(err).Msg("Bridge is inert, waiting for shutdown")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("Shutting down")
	cancel()
	b.Stop()
}
