// Package telegram adapts the Telegram Bot API to the verification engine:
// a Client implementing the membership gateway and notifier ports, a long
// polling Poller that keeps forum thread ids, and a Dispatcher that
// normalizes updates and preserves per-member arrival order.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gatekeeper/internal/verification/models"
)

// Connect builds a bot and performs the getMe self-check.
func Connect(token, endpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, classify("getMe", err)
	}
	return bot, nil
}

// Client implements ports.MembershipGateway and ports.Notifier.
type Client struct {
	api    requester
	logger *slog.Logger
}

type ClientOption func(*Client)

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(api requester, opts ...ClientOption) *Client {
	c := &Client{
		api:    api,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetRole(ctx context.Context, chatID, userID int64) (models.Role, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("user_id", userID)

	raw, err := request(ctx, c.api, "getChatMember", params)
	if err != nil {
		return "", err
	}
	var member tgbotapi.ChatMember
	if err := json.Unmarshal(raw, &member); err != nil {
		return "", fmt.Errorf("getChatMember: decode: %w", err)
	}
	return models.Role(member.Status), nil
}

// Restrict toggles every content permission at once. Other permissions are
// left as the chat defaults.
func (c *Client) Restrict(ctx context.Context, chatID, userID int64, allowSend bool) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("user_id", userID)
	err := params.AddInterface("permissions", &tgbotapi.ChatPermissions{
		CanSendMessages:       allowSend,
		CanSendMediaMessages:  allowSend,
		CanSendPolls:          allowSend,
		CanSendOtherMessages:  allowSend,
		CanAddWebPagePreviews: allowSend,
	})
	if err != nil {
		return fmt.Errorf("restrictChatMember: encode permissions: %w", err)
	}

	_, err = request(ctx, c.api, "restrictChatMember", params)
	return err
}

func (c *Client) SendChallenge(ctx context.Context, msg models.ChallengeMessage) (int, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", msg.ChatID)
	params["text"] = msg.Text
	params.AddNonZero("message_thread_id", msg.ThreadID)
	params.AddNonZero("reply_to_message_id", msg.ReplyTo)
	params.AddBool("allow_sending_without_reply", true)
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(msg.ButtonText, msg.Token)),
	)
	if err := params.AddInterface("reply_markup", markup); err != nil {
		return 0, fmt.Errorf("sendMessage: encode markup: %w", err)
	}

	raw, err := request(ctx, c.api, "sendMessage", params)
	if err != nil {
		return 0, err
	}
	var sent tgbotapi.Message
	if err := json.Unmarshal(raw, &sent); err != nil {
		return 0, fmt.Errorf("sendMessage: decode: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) AnswerChallenge(ctx context.Context, callbackID, text string) error {
	params := tgbotapi.Params{}
	params["callback_query_id"] = callbackID
	params.AddNonEmpty("text", text)

	_, err := request(ctx, c.api, "answerCallbackQuery", params)
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)

	_, err := request(ctx, c.api, "deleteMessage", params)
	if err != nil {
		c.logger.DebugContext(ctx, "delete message failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
	return err
}
