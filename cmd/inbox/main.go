package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"inboxsync/internal/auth"
	"inboxsync/internal/client"
	"inboxsync/internal/config"
	"inboxsync/internal/domain"
	"inboxsync/internal/syncengine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	baseURL := pflag.String("base-url", cfg.Client.BaseURL, "inbox server URL")
	token := pflag.String("token", cfg.Client.Token, "bearer token")
	source := pflag.String("source", "", "source to open (defaults to the first one)")
	send := pflag.String("send", "", "post a message to the open source")
	addSource := pflag.String("add-source", "", "register a source with this name and open it")
	sourceType := pflag.String("type", string(domain.SourceLocal), "type of the source registered with --add-source")
	secret := pflag.String("secret", "", "platform token of the source registered with --add-source")
	watch := pflag.Bool("watch", false, "keep polling and print new messages")
	interval := pflag.Duration("interval", cfg.Client.PollInterval, "poll interval for --watch")
	pflag.Parse()

	if *baseURL == "" {
		*baseURL = "http://localhost" + cfg.Server.Port
	}
	if *token == "" {
		log.Fatalf("a token is required (--token or client.token)")
	}

	session := auth.NewSession()
	session.Set(*token, "")

	engine := syncengine.New(client.New(*baseURL, session), session, *interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Bootstrap(ctx); err != nil {
		log.Fatalf("failed to load sources: %v", err)
	}

	active := *source
	if *addSource != "" {
		src, err := engine.AddSource(ctx, *addSource, domain.SourceType(*sourceType), *secret)
		if err != nil {
			log.Fatalf("failed to add source: %v", err)
		}
		active = src.ID
	}
	if active == "" {
		if sources := engine.Snapshot().Sources; len(sources) > 0 {
			active = sources[0].ID
		}
	}

	if active == "" {
		log.Fatalf("no source to open")
	}
	if err := engine.Select(ctx, active); err != nil {
		log.Fatalf("failed to load messages: %v", err)
	}

	if *send != "" {
		if _, err := engine.Send(ctx, *send, active, platformOf(engine.Snapshot(), active)); err != nil {
			log.Fatalf("failed to send: %v", err)
		}
	}

	printState(engine.Snapshot())

	if !*watch {
		return
	}

	go engine.Run(ctx)

	changes := engine.Subscribe()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	seen := make(map[string]bool)
	for _, m := range engine.Snapshot().Messages {
		seen[m.ID] = true
	}
	for {
		select {
		case <-quit:
			engine.Stop()
			return
		case <-changes:
			state := engine.Snapshot()
			if state.Error != "" {
				log.Printf("[WARN] %s", state.Error)
				engine.ClearError()
			}
			for _, m := range state.Messages {
				if !seen[m.ID] {
					seen[m.ID] = true
					printMessage(m)
				}
			}
		}
	}
}

func platformOf(state syncengine.State, sourceID string) string {
	for _, s := range state.Sources {
		if s.ID == sourceID {
			return string(s.Type)
		}
	}
	return string(domain.SourceLocal)
}

func printState(state syncengine.State) {
	fmt.Println("Sources:")
	for _, s := range state.Sources {
		marker := " "
		if s.ID == state.ActiveSourceID {
			marker = "*"
		}
		fmt.Printf(" %s %s  %-20s %-8s unread=%d  %s\n", marker, s.ID, s.Name, s.Type, s.UnreadCount, s.LastMessage)
	}

	fmt.Println()
	for _, m := range state.Messages {
		printMessage(m)
	}
}

func printMessage(m domain.Message) {
	who := m.SenderName
	if m.IsOwn {
		who = "you"
	}
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format(time.Kitchen), who, m.Content)
}
