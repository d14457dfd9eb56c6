package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"inboxsync/internal/domain"
)

var ErrNoChat = errors.New("source has no telegram chat id")

// Telegram posts through the bot whose token the source was registered
// with, into the chat named by the source's external id.
type Telegram struct {
	apiServer string

	mu   sync.Mutex
	bots map[string]*telego.Bot
}

func NewTelegram() *Telegram {
	return &Telegram{bots: make(map[string]*telego.Bot)}
}

// NewTelegramWithServer points the bots at a non-default Bot API server.
func NewTelegramWithServer(apiServer string) *Telegram {
	t := NewTelegram()
	t.apiServer = apiServer
	return t
}

func (t *Telegram) Relay(ctx context.Context, src domain.Source, msg domain.Message) error {
	if src.ExternalID == "" {
		return ErrNoChat
	}

	bot, err := t.bot(src.SecretToken)
	if err != nil {
		return fmt.Errorf("telegram bot for %s: %w", src.ID, err)
	}

	_, err = bot.SendMessage(ctx, tu.Message(chatID(src.ExternalID), formatMessage(msg)))
	return err
}

func (t *Telegram) bot(token string) (*telego.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b, ok := t.bots[token]; ok {
		return b, nil
	}

	opts := []telego.BotOption{telego.WithDiscardLogger()}
	if t.apiServer != "" {
		opts = append(opts, telego.WithAPIServer(t.apiServer))
	}

	b, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, err
	}
	t.bots[token] = b
	return b, nil
}

func chatID(external string) telego.ChatID {
	if id, err := strconv.ParseInt(external, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(external, "@") {
		external = "@" + external
	}
	return tu.Username(external)
}

func formatMessage(msg domain.Message) string {
	if msg.SenderName == "" {
		return msg.Content
	}
	return msg.SenderName + ": " + msg.Content
}
