package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procura/internal/config"
	"procura/internal/connectors"
	gmailconnector "procura/internal/connectors/gmail"
	imapconnector "procura/internal/connectors/imap"
	"procura/internal/listener"
	"procura/internal/logger"
	"procura/internal/oracle"
	"procura/internal/pipeline"
	"procura/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logger.New(cfg.LogJSON, cfg.LogDebug)
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var conn connectors.MailConnector
	switch cfg.MailProvider {
	case "gmail":
		conn, err = gmailconnector.NewConnector(cfg)
	case "imap":
		conn, err = imapconnector.NewConnector(cfg)
	default:
		err = fmt.Errorf("unsupported mail provider: %s", cfg.MailProvider)
	}
	must(err)

	ai, err := oracle.New(ctx, cfg, log)
	must(err)

	source := connectors.NewSource(conn, cfg.RawMailDir, cfg.IngestFetchMax, log)
	deadline := time.Duration(cfg.IngestDeadlineSec) * time.Second
	ingest := pipeline.NewIngestService(db, source, ai, deadline, log)

	svc := listener.NewService(ingest, cfg, log)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
