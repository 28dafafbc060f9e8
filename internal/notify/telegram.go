package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramMirror posts a copy of each notification to an operator chat.
type TelegramMirror struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegramMirror(token string, chatID int64, opts ...telego.BotOption) (*TelegramMirror, error) {
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &TelegramMirror{
		bot:    bot,
		chatID: chatID,
	}, nil
}

func (m *TelegramMirror) Name() string {
	return "telegram"
}

func (m *TelegramMirror) Post(ctx context.Context, content EmailContent) error {
	text := fmt.Sprintf("🔔 <b>%s</b>", html.EscapeString(content.Subject))
	if content.Link != "" {
		text += fmt.Sprintf("\n\n🔗 <a href=\"%s\">Open product</a>", html.EscapeString(content.Link))
	}

	msg := tu.Message(
		tu.ID(m.chatID),
		text,
	).WithParseMode(telego.ModeHTML)

	if _, err := m.bot.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}
