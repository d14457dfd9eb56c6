package domain

import "time"

type SourceType string

const (
	SourceTelegram SourceType = "telegram"
	SourceDiscord  SourceType = "discord"
	SourceSlack    SourceType = "slack"
	SourceWhatsApp SourceType = "whatsapp"
	SourceRSS      SourceType = "rss"
	SourceLocal    SourceType = "local"
)

func (t SourceType) Valid() bool {
	switch t {
	case SourceTelegram, SourceDiscord, SourceSlack, SourceWhatsApp, SourceRSS, SourceLocal:
		return true
	}
	return false
}

// Source is a registered chat integration owned by one user.
//
// SecretToken is only populated on records read inside the server; every
// value that crosses the response boundary goes through Public first.
type Source struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        SourceType `json:"type"`
	OwnerUserID string     `json:"userId"`
	SecretToken string     `json:"token,omitempty"`
	ExternalID  string     `json:"externalId,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	UnreadCount int        `json:"unreadCount"`
	LastMessage string     `json:"lastMessage"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Public returns a copy of s safe to hand to a client.
func (s Source) Public() Source {
	s.SecretToken = ""
	return s
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"name"`
	Avatar      string `json:"avatar"`
}
