package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"inboxsync/internal/config"
	"inboxsync/internal/feed"
	"inboxsync/internal/messagelog"
	"inboxsync/internal/registry"
	"inboxsync/internal/storage"
	"inboxsync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "memory" {
		log.Fatalf("the ingester needs a shared storage driver (redis, postgres or sqlite)")
	}

	store, err := storage.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()

	w := worker.NewIngester(feed.NewHTTPFetcher(), registry.New(store), messagelog.New(store), store, cfg.Ingest.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Start(ctx)

	log.Printf("ingester started, interval %s", cfg.Ingest.Interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down")
	cancel()
}
