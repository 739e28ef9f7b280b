// Package telegram connects a Telegram bot to the gateway.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/fairweather/internal/gateway"
	"github.com/user/fairweather/internal/types"
)

const (
	Source             = "telegram"
	maxTelegramMessage = 4096

	welcomeText = "Hi! I can check the weather and put weather-sensitive plans in your calendar.\n\n" +
		"Try:\n" +
		"- \"What's the weather like tomorrow in Singapore?\"\n" +
		"- \"Schedule a picnic on Saturday at 3pm\"\n" +
		"- \"Go running tomorrow morning\"\n\n" +
		"Send /cancel to drop a pending question."
	cancelText  = "Okay, I've cleared that. What would you like to do?"
	unknownText = "Unknown command. Available: /start, /help, /cancel"
	errorText   = "Sorry, something went wrong processing your message."
)

// sender is the part of *tgbotapi.BotAPI used for replies.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter bridges Telegram to the gateway. Each chat is one conversation.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	send    sender
	gateway *gateway.Gateway
}

func New(token string, gw *gateway.Gateway) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	return &Adapter{bot: bot, send: bot, gateway: gw}, nil
}

// Start long-polls for updates until ctx is done.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// Deliver sends message to the chat behind id. It is registered with the
// delivery registry for scheduled briefings.
func (a *Adapter) Deliver(_ context.Context, id types.ConversationID, message string) error {
	chatID, err := chatIDOf(id)
	if err != nil {
		return err
	}
	return a.sendResponse(chatID, message)
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	event := &types.InboundEvent{
		Source:         Source,
		ConversationID: conversationID(chatID),
		Text:           msg.Text,
	}
	if msg.From != nil {
		event.UserID = strconv.FormatInt(msg.From.ID, 10)
	}

	err := a.gateway.HandleInbound(ctx, event, gateway.WithOnComplete(func(response string) {
		a.reply(chatID, response)
	}))
	if err != nil {
		slog.Error("handle inbound failed", "conversation_id", string(event.ConversationID), "error", err)
		a.reply(chatID, errorText)
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		a.reply(chatID, welcomeText)
	case "cancel":
		a.gateway.Dispatcher().Reset(ctx, conversationID(chatID))
		a.reply(chatID, cancelText)
	default:
		a.reply(chatID, unknownText)
	}
}

func (a *Adapter) reply(chatID int64, text string) {
	if err := a.sendResponse(chatID, text); err != nil {
		slog.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

// sendResponse sends text in parts, retrying each part as plain text if
// Telegram rejects its Markdown.
func (a *Adapter) sendResponse(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.send.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := a.send.Send(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitMessage cuts text into parts of at most maxTelegramMessage bytes,
// preferring line breaks and never splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		if nl := strings.LastIndexByte(text[:end], '\n'); nl > maxTelegramMessage/2 {
			end = nl + 1
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func conversationID(chatID int64) types.ConversationID {
	return types.NewConversationID(Source, strconv.FormatInt(chatID, 10))
}

func chatIDOf(id types.ConversationID) (int64, error) {
	rest, ok := strings.CutPrefix(string(id), Source+":")
	if !ok {
		return 0, fmt.Errorf("not a telegram conversation: %s", id)
	}
	chatID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad telegram chat id in %s: %w", id, err)
	}
	return chatID, nil
}
