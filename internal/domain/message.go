package domain

import "time"

// Message is one piece of content in a source's log. IsOwn is never
// persisted: it is filled in per viewer when the log is read.
type Message struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	SourceID     string    `json:"sourceId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar string    `json:"senderAvatar"`
	Platform     string    `json:"platform"`
	Timestamp    time.Time `json:"timestamp"`
	IsOwn        bool      `json:"isOwn"`
}

// ViewedBy returns a copy of m with IsOwn computed for viewerID.
func (m Message) ViewedBy(viewerID string) Message {
	m.IsOwn = m.SenderID == viewerID
	return m
}

// MessageEvent is published after a message has been appended to a log.
type MessageEvent struct {
	Message  Message `json:"message"`
	SourceID string  `json:"sourceId"`
	Platform string  `json:"platform"`
}
