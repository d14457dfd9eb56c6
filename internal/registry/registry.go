// Package registry owns source records and the per-user source index.
//
// A source is written as two independent keys: the record itself, then its
// id appended to the owner's index. Nothing makes the pair atomic, so List
// skips index entries whose record is missing or unreadable.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"inboxsync/internal/domain"
	"inboxsync/internal/ident"
	"inboxsync/internal/kv"
)

var (
	ErrInvalidSource  = errors.New("invalid source")
	ErrSourceNotFound = errors.New("source not found")
)

const feedIndexKey = "feeds"

func sourceKey(id string) string       { return "source:" + id }
func userSourcesKey(uid string) string { return "user:" + uid + ":sources" }

type Registry struct {
	store kv.Store
	now   func() time.Time
}

func New(store kv.Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Create persists a new source for owner and returns it without its token.
func (r *Registry) Create(ctx context.Context, owner domain.Identity, name string, typ domain.SourceType, secretToken, externalID string) (domain.Source, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Source{}, fmt.Errorf("%w: name required", ErrInvalidSource)
	}
	if !typ.Valid() {
		return domain.Source{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSource, typ)
	}
	if typ == domain.SourceRSS && externalID == "" {
		return domain.Source{}, fmt.Errorf("%w: rss source needs a feed url", ErrInvalidSource)
	}

	src := domain.Source{
		ID:          ident.NewSourceID(),
		Name:        name,
		Type:        typ,
		OwnerUserID: owner.UserID,
		SecretToken: secretToken,
		ExternalID:  externalID,
		IsOnline:    true,
		CreatedAt:   r.now().UTC(),
	}

	if err := kv.SetJSON(ctx, r.store, sourceKey(src.ID), src); err != nil {
		return domain.Source{}, fmt.Errorf("save source: %w", err)
	}

	if _, err := kv.AppendList(ctx, r.store, userSourcesKey(owner.UserID), src.ID, 0); err != nil {
		return domain.Source{}, fmt.Errorf("index source: %w", err)
	}

	if typ == domain.SourceRSS {
		if _, err := kv.AppendList(ctx, r.store, feedIndexKey, src.ID, 0); err != nil {
			return domain.Source{}, fmt.Errorf("index feed: %w", err)
		}
	}

	return src.Public(), nil
}

// List returns owner's sources in creation order with tokens stripped.
func (r *Registry) List(ctx context.Context, ownerID string) ([]domain.Source, error) {
	sources, err := r.resolve(ctx, userSourcesKey(ownerID))
	if err != nil {
		return nil, err
	}
	for i := range sources {
		sources[i] = sources[i].Public()
	}
	return sources, nil
}

// Get returns the full record including its token. Server internal only.
func (r *Registry) Get(ctx context.Context, id string) (domain.Source, error) {
	var src domain.Source
	err := kv.GetJSON(ctx, r.store, sourceKey(id), &src)
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Source{}, ErrSourceNotFound
	}
	if err != nil {
		return domain.Source{}, err
	}
	return src, nil
}

// RecordActivity updates the denormalized last message and unread counter.
// An empty lastMessage leaves the current one in place.
func (r *Registry) RecordActivity(ctx context.Context, sourceID, lastMessage string, unreadDelta int) error {
	src, err := r.Get(ctx, sourceID)
	if err != nil {
		return err
	}

	if lastMessage != "" {
		src.LastMessage = lastMessage
	}
	src.UnreadCount += unreadDelta
	if src.UnreadCount < 0 {
		src.UnreadCount = 0
	}

	return kv.SetJSON(ctx, r.store, sourceKey(sourceID), src)
}

// FeedSources returns every rss source, tokens included, for the ingester.
func (r *Registry) FeedSources(ctx context.Context) ([]domain.Source, error) {
	return r.resolve(ctx, feedIndexKey)
}

func (r *Registry) resolve(ctx context.Context, indexKey string) ([]domain.Source, error) {
	ids, err := kv.GetList(ctx, r.store, indexKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", indexKey, err)
	}

	sources := make([]domain.Source, 0, len(ids))
	for _, id := range ids {
		src, err := r.Get(ctx, id)
		if errors.Is(err, ErrSourceNotFound) {
			continue
		}
		if err != nil {
			log.Printf("[ERROR] source %s: %v", id, err)
			continue
		}
		sources = append(sources, src)
	}

	return sources, nil
}
