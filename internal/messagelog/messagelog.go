// Package messagelog stores messages and the bounded per-source index that
// orders them.
package messagelog

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

// MaxIndexLength caps a source's index. Evicted ids keep their records.
const MaxIndexLength = 100

var ErrEmptyContent = errors.New("message content is empty")

func messageKey(id string) string        { return "message:" + id }
func sourceMessagesKey(id string) string { return "source:" + id + ":messages" }

type Log struct {
	store kv.Store
	now   func() time.Time
}

func New(store kv.Store) *Log {
	return &Log{store: store, now: time.Now}
}

// Append writes a message authored by author and returns it as the author
// sees it.
func (l *Log) Append(ctx context.Context, author domain.Identity, sourceID, platform, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrEmptyContent
	}

	senderName := author.DisplayName
	if senderName == "" {
		senderName = "Unknown User"
	}

	msg, err := l.Ingest(ctx, domain.Message{
		ID:           ident.NewMessageID(),
		Content:      content,
		SourceID:     sourceID,
		SenderID:     author.UserID,
		SenderName:   senderName,
		SenderAvatar: author.Avatar,
		Platform:     platform,
	})
	if err != nil {
		return domain.Message{}, err
	}

	return msg.ViewedBy(author.UserID), nil
}

// Ingest stores msg as given, filling in a missing id or timestamp, and
// appends it to its source's index.
func (l *Log) Ingest(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.ID == "" {
		msg.ID = ident.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now().UTC()
	}
	msg.IsOwn = false

	if err := kv.SetJSON(ctx, l.store, messageKey(msg.ID), msg); err != nil {
		return domain.Message{}, fmt.Errorf("save message: %w", err)
	}

	if _, err := kv.AppendList(ctx, l.store, sourceMessagesKey(msg.SourceID), msg.ID, MaxIndexLength); err != nil {
		return domain.Message{}, fmt.Errorf("index message: %w", err)
	}

	return msg, nil
}

// List returns the indexed messages of sourceID, oldest first, with IsOwn
// set relative to viewerID.
func (l *Log) List(ctx context.Context, viewerID, sourceID string) ([]domain.Message, error) {
	ids, err := kv.GetList(ctx, l.store, sourceMessagesKey(sourceID))
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		var msg domain.Message
		err := kv.GetJSON(ctx, l.store, messageKey(id), &msg)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("[ERROR] message %s: %v", id, err)
			continue
		}
		messages = append(messages, msg.ViewedBy(viewerID))
	}

	return messages, nil
}
