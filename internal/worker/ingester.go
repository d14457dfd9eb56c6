package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"inboxsync/internal/domain"
	"inboxsync/internal/feed"
	"inboxsync/internal/kv"
)

type MessageWriter interface {
	Ingest(ctx context.Context, msg domain.Message) (domain.Message, error)
}

// Ingester polls rss sources and appends unseen items to their logs.
type Ingester struct {
	fetcher  feed.Fetcher
	sources  SourceStore
	messages MessageWriter
	store    kv.Store
	interval time.Duration
}

func NewIngester(f feed.Fetcher, s SourceStore, m MessageWriter, store kv.Store, interval time.Duration) *Ingester {
	return &Ingester{
		fetcher:  f,
		sources:  s,
		messages: m,
		store:    store,
		interval: interval,
	}
}

func (w *Ingester) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.IngestAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.IngestAll(ctx)
		}
	}
}

func (w *Ingester) IngestAll(ctx context.Context) {
	sources, err := w.sources.FeedSources(ctx)
	if err != nil {
		log.Printf("[ERROR] list feed sources: %v", err)
		return
	}

	for _, src := range sources {
		n, err := w.ingest(ctx, src)
		if err != nil {
			log.Printf("[ERROR] feed %s (%s): %v", src.ID, src.ExternalID, err)
			continue
		}
		if n > 0 {
			log.Printf("[INGEST] %s: %d new items", src.ID, n)
		}
	}
}

func seenKey(sourceID, itemKey string) string {
	return "feed:" + sourceID + ":seen:" + itemKey
}

func (w *Ingester) ingest(ctx context.Context, src domain.Source) (int, error) {
	f, err := w.fetcher.Fetch(ctx, src.ExternalID)
	if err != nil {
		return 0, err
	}

	var (
		added int
		last  string
	)
	for _, item := range f.Items {
		key := seenKey(src.ID, item.Key)

		_, err := w.store.Get(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, kv.ErrNotFound) {
			return added, err
		}

		sender := item.Author
		if sender == "" {
			sender = src.Name
		}

		if _, err := w.messages.Ingest(ctx, domain.Message{
			Content:    item.Content(),
			SourceID:   src.ID,
			SenderID:   "feed:" + src.ID,
			SenderName: sender,
			Platform:   string(domain.SourceRSS),
			Timestamp:  item.Published,
		}); err != nil {
			return added, err
		}

		if err := w.store.Set(ctx, key, []byte("1")); err != nil {
			return added, err
		}

		added++
		last = item.Title
	}

	if added > 0 {
		if err := w.sources.RecordActivity(ctx, src.ID, last, added); err != nil {
			return added, err
		}
	}

	return added, nil
}
