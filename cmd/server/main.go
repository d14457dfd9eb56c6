package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inboxsync/internal/api"
	"inboxsync/internal/auth"
	"inboxsync/internal/config"
	"inboxsync/internal/messagelog"
	"inboxsync/internal/queue"
	"inboxsync/internal/registry"
	"inboxsync/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := storage.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()

	var publisher queue.Publisher
	if len(cfg.Queue.Brokers) > 0 {
		publisher, err = queue.NewKafka(cfg.Queue.Brokers, cfg.Queue.Topic)
		if err != nil {
			log.Fatalf("failed to create queue: %v", err)
		}
	} else {
		// Nothing consumes events without a broker. cmd/app runs the
		// in-process pipeline instead.
		publisher = queue.Discard{}
		log.Printf("no queue.brokers configured, message events are discarded")
	}
	defer publisher.Close()

	gate := auth.NewGate(auth.Chain{
		auth.NewStaticResolver(cfg.Auth.Tokens),
		auth.NewSessionStore(store),
	})

	server := api.NewServer(registry.New(store), messagelog.New(store), gate, publisher, cfg.Server.Prefix)

	go func() {
		log.Printf("server starting on %s (storage=%s)", cfg.Server.Port, cfg.Storage.Driver)
		if err := server.Start(cfg.Server.Port); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
