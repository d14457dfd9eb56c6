package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"inboxsync/internal/auth"
	"inboxsync/internal/config"
	"inboxsync/internal/domain"
	"inboxsync/internal/storage"
)

func main() {
	token := pflag.String("token", "", "session token (generated when empty)")
	userID := pflag.String("user", "", "user id the session resolves to")
	name := pflag.String("name", "", "display name")
	avatar := pflag.String("avatar", "", "avatar URL")
	revoke := pflag.Bool("revoke", false, "revoke --token instead of issuing it")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.Driver == "memory" {
		log.Fatalf("sessions need a shared storage driver (redis, postgres or sqlite)")
	}

	store, err := storage.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()

	sessions := auth.NewSessionStore(store)
	ctx := context.Background()

	if *revoke {
		if *token == "" {
			log.Fatalf("--revoke needs --token")
		}
		if err := sessions.Revoke(ctx, *token); err != nil {
			log.Fatalf("failed to revoke session: %v", err)
		}
		log.Printf("session revoked")
		return
	}

	if *userID == "" {
		log.Fatalf("--user is required")
	}
	if *token == "" {
		*token = uuid.NewString()
	}

	id := domain.Identity{UserID: *userID, DisplayName: *name, Avatar: *avatar}
	if err := sessions.Issue(ctx, *token, id); err != nil {
		log.Fatalf("failed to issue session: %v", err)
	}

	fmt.Println(*token)
}
