package notifier

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramSender posts plain text messages to one chat. It also serves as
// the log service's chat sink.
type TelegramSender struct {
	bot  *tele.Bot
	chat *tele.Chat
}

func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	// Offline skips the getMe probe so startup does not depend on the
	// network; a bad token surfaces on the first send.
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Poller:  &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b, chat: &tele.Chat{ID: chatID}}, nil
}

func (s *TelegramSender) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(s.chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
