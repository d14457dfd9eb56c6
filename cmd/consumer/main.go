package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"inboxsync/internal/config"
	"inboxsync/internal/domain"
	"inboxsync/internal/queue"
	"inboxsync/internal/registry"
	"inboxsync/internal/relay"
	"inboxsync/internal/storage"
	"inboxsync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if len(cfg.Queue.Brokers) == 0 {
		log.Fatalf("queue.brokers is required for the standalone consumer")
	}

	store, err := storage.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()

	consumer, err := queue.NewKafkaConsumer(cfg.Queue.Brokers, cfg.Queue.GroupID, cfg.Queue.Topic)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	relays := relay.NewDispatcher()
	relays.Register(domain.SourceTelegram, relay.NewTelegram())

	w := worker.NewConsumer(consumer, registry.New(store), relays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := w.Start(ctx); err != nil {
			log.Printf("consumer error: %v", err)
		}
	}()

	log.Printf("consumer started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down")
	cancel()
}
