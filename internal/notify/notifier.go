package notify

import (
	"context"
	"fmt"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier pushes short human-readable relay events (dispatches, rejections).
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// StatusFunc renders the answer to the /status command.
type StatusFunc func() string

type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram: пассивный нотифайер + обработка одной команды /status.
type Telegram struct {
	bot    sender
	api    *tgbot.BotAPI // nil in tests
	chatID int64
	log    *zap.Logger

	mu     sync.RWMutex
	status StatusFunc
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, api: b, chatID: chatID, log: log}, nil
}

func (t *Telegram) SetStatus(f StatusFunc) {
	t.mu.Lock()
	t.status = f
	t.mu.Unlock()
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil && t.log != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) handleStatus() {
	t.mu.RLock()
	f := t.status
	t.mu.RUnlock()
	if f == nil {
		t.Send("relay status unavailable")
		return
	}
	t.Send(f())
}

// Start: long-polling для команд из своего чата.
func (t *Telegram) Start(ctx context.Context) {
	if t == nil || t.api == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.api.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message != nil && upd.Message.Chat != nil &&
					upd.Message.Chat.ID == t.chatID && upd.Message.IsCommand() {

					switch upd.Message.Command() {
					case "status":
						t.handleStatus()
					}
				}
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t != nil && t.api != nil {
		t.api.StopReceivingUpdates()
	}
}

// Stdout: заглушка, всё пишет в лог.
type Stdout struct {
	log *zap.Logger
}

func NewStdout(log *zap.Logger) *Stdout { return &Stdout{log: log} }

func (s *Stdout) Send(msg string) { s.log.Info("notify", zap.String("text", msg)) }

func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }
