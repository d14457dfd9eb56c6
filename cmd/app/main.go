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
	"inboxsync/internal/domain"
	"inboxsync/internal/feed"
	"inboxsync/internal/messagelog"
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

	store, err := storage.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()

	sources := registry.New(store)
	messages := messagelog.New(store)

	var (
		publisher queue.Publisher
		consumer  queue.Consumer
	)
	if len(cfg.Queue.Brokers) > 0 {
		k, err := queue.NewKafka(cfg.Queue.Brokers, cfg.Queue.Topic)
		if err != nil {
			log.Fatalf("failed to create queue: %v", err)
		}
		kc, err := queue.NewKafkaConsumer(cfg.Queue.Brokers, cfg.Queue.GroupID, cfg.Queue.Topic)
		if err != nil {
			log.Fatalf("failed to create consumer: %v", err)
		}
		publisher, consumer = k, kc
	} else {
		local := queue.NewLocal(256)
		publisher, consumer = local, local
	}
	defer publisher.Close()
	defer consumer.Close()

	relays := relay.NewDispatcher()
	relays.Register(domain.SourceTelegram, relay.NewTelegram())

	gate := auth.NewGate(auth.Chain{
		auth.NewStaticResolver(cfg.Auth.Tokens),
		auth.NewSessionStore(store),
	})

	server := api.NewServer(sources, messages, gate, publisher, cfg.Server.Prefix)
	events := worker.NewConsumer(consumer, sources, relays)
	ingester := worker.NewIngester(feed.NewHTTPFetcher(), sources, messages, store, cfg.Ingest.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := events.Start(ctx); err != nil {
			log.Printf("consumer error: %v", err)
		}
	}()

	go ingester.Start(ctx)

	go func() {
		log.Printf("server starting on %s (storage=%s)", cfg.Server.Port, cfg.Storage.Driver)
		if err := server.Start(cfg.Server.Port); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	log.Printf("app started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	server.Shutdown(shutdownCtx)
}
