package deliver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "courtcast/pkg/logx"
)

const telegramPrefix = "tg:"

// Telegram sends digests straight to a telegram chat for destinations
// of the form "tg:<chat_id>". It is send-only: the bot never polls.
type Telegram struct {
	bot *tele.Bot
	log logx.Logger
}

func NewTelegram(token string, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// Offline=true skips the getMe probe so construction works without
	// network; send errors surface per attempt instead.
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, log: log}, nil
}

func (t *Telegram) Send(ctx context.Context, m Message) (Response, error) {
	raw := strings.TrimPrefix(m.Destination, telegramPrefix)
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Response{}, fmt.Errorf("telegram destination %q: %w", m.Destination, err)
	}

	msg, err := t.bot.Send(&tele.Chat{ID: chatID}, m.Text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return Response{}, err
	}
	return Response{Status: "ok", Result: "message_id=" + strconv.Itoa(msg.ID)}, nil
}
