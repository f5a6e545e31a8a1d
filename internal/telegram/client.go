// Package telegram answers popup requests through a Telegram bot, without
// any local UI.
package telegram

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/internal/mcp"
	"github.com/professor93/cunzhi/pkg/constants"
)

// ErrAPI marks a request the Bot API rejected
var ErrAPI = errors.New("telegram api error")

const (
	callbackContinue     = "continue"
	callbackOptionPrefix = "opt:"
	continueButtonText   = "Continue"

	// DefaultPollTimeout is the getUpdates long-poll duration in seconds
	DefaultPollTimeout = 30
)

// Client talks to the Bot API for one chat
type Client struct {
	http        *resty.Client
	chatID      string
	pollTimeout int
	retryDelay  time.Duration
	logger      *zap.Logger
}

// Option adjusts a Client
type Option func(*Client)

// WithPollTimeout sets the long-poll duration in seconds
func WithPollTimeout(seconds int) Option {
	return func(c *Client) {
		c.pollTimeout = seconds
	}
}

// WithRetryDelay sets the pause after a failed poll
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// NewClient creates a client from the Telegram configuration
func NewClient(cfg config.TelegramConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, errors.New("telegram bot token and chat id are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = constants.DefaultTelegramAPI
	}

	c := &Client{
		chatID:      cfg.ChatID,
		pollTimeout: DefaultPollTimeout,
		retryDelay:  5 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = resty.New().
		SetBaseURL(base+"/bot"+cfg.BotToken).
		SetHeader("Content-Type", "application/json").
		SetTimeout(time.Duration(c.pollTimeout+10) * time.Second)

	return c, nil
}

// call posts payload to a Bot API method and decodes the result into out
func (c *Client) call(ctx context.Context, method string, payload, out interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/" + method)
	if err != nil {
		return errors.Wrapf(err, "telegram %s request failed", method)
	}

	var env apiResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		if resp.IsError() {
			return errors.Wrapf(ErrAPI, "%s: HTTP %d", method, resp.StatusCode())
		}
		return errors.Wrapf(err, "telegram %s: malformed response", method)
	}
	if !env.OK || resp.IsError() {
		return errors.Wrapf(ErrAPI, "%s: %s (code %d)", method, env.Description, env.ErrorCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return errors.Wrapf(err, "telegram %s: malformed result", method)
		}
	}
	return nil
}

func (c *Client) sendPopup(ctx context.Context, req mcp.PopupRequest) (int, error) {
	keyboard := &inlineKeyboard{}
	for i, option := range req.PredefinedOptions {
		keyboard.InlineKeyboard = append(keyboard.InlineKeyboard, []inlineButton{{
			Text:         option,
			CallbackData: callbackOptionPrefix + strconv.Itoa(i),
		}})
	}
	keyboard.InlineKeyboard = append(keyboard.InlineKeyboard, []inlineButton{{
		Text:         continueButtonText,
		CallbackData: callbackContinue,
	}})

	payload := sendMessageRequest{
		ChatID:      c.chatID,
		Text:        req.Message,
		ReplyMarkup: keyboard,
	}
	if req.IsMarkdown {
		payload.ParseMode = "Markdown"
	}

	var sent message
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) getUpdates(ctx context.Context, offset, timeout int) ([]update, error) {
	var updates []update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        timeout,
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

func (c *Client) answerCallback(ctx context.Context, id, text string) {
	err := c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: id, Text: text}, nil)
	if err != nil {
		c.logger.Warn("Failed to answer Telegram callback", zap.Error(err))
	}
}

// pendingOffset skips updates that arrived before the popup was sent.
// getUpdates returns a bounded batch, so it drains until one comes back empty.
func (c *Client) pendingOffset(ctx context.Context) (int, error) {
	offset := 0
	for {
		updates, err := c.getUpdates(ctx, offset, 0)
		if err != nil {
			return 0, err
		}
		if len(updates) == 0 {
			return offset, nil
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
	}
}

func (c *Client) fromChat(m *message) bool {
	return m != nil && strconv.FormatInt(m.Chat.ID, 10) == c.chatID
}

// Decide implements mcp.DecisionProvider. It sends req to the chat and
// long-polls until a button press or a text reply answers it.
func (c *Client) Decide(ctx context.Context, req mcp.PopupRequest) (mcp.Response, error) {
	req.EnsureID()

	offset, err := c.pendingOffset(ctx)
	if err != nil {
		return mcp.Response{}, err
	}

	messageID, err := c.sendPopup(ctx, req)
	if err != nil {
		return mcp.Response{}, err
	}
	c.logger.Info("Popup sent to Telegram", zap.String("request_id", req.ID), zap.Int("message_id", messageID))

	for {
		if err := ctx.Err(); err != nil {
			return mcp.Response{}, err
		}

		updates, err := c.getUpdates(ctx, offset, c.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return mcp.Response{}, ctx.Err()
			}
			if errors.Is(err, ErrAPI) {
				return mcp.Response{}, err
			}
			c.logger.Warn("Telegram poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return mcp.Response{}, ctx.Err()
			case <-time.After(c.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1

			if resp, ok := c.decision(ctx, req, messageID, u); ok {
				return resp, nil
			}
		}
	}
}

// decision turns one update into a response, if it answers the popup
func (c *Client) decision(ctx context.Context, req mcp.PopupRequest, messageID int, u update) (mcp.Response, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if !c.fromChat(cq.Message) || cq.Message.MessageID != messageID {
			return mcp.Response{}, false
		}

		if cq.Data == callbackContinue {
			c.answerCallback(ctx, cq.ID, continueButtonText)
			return mcp.NewContinueResponse(req.ID, mcp.SourceTelegram), true
		}

		index, err := strconv.Atoi(strings.TrimPrefix(cq.Data, callbackOptionPrefix))
		if !strings.HasPrefix(cq.Data, callbackOptionPrefix) || err != nil || index < 0 || index >= len(req.PredefinedOptions) {
			c.answerCallback(ctx, cq.ID, "")
			return mcp.Response{}, false
		}

		option := req.PredefinedOptions[index]
		c.answerCallback(ctx, cq.ID, option)
		return mcp.NewSelectionResponse(req.ID, mcp.SourceTelegram, option), true
	}

	if m := u.Message; c.fromChat(m) && strings.TrimSpace(m.Text) != "" {
		return mcp.NewInputResponse(req.ID, mcp.SourceTelegram, m.Text), true
	}
	return mcp.Response{}, false
}

// HandleRequestFile answers the popup request stored at path through
// Telegram and writes the response JSON to out.
func HandleRequestFile(ctx context.Context, path string, cfg config.TelegramConfig, out io.Writer, logger *zap.Logger, opts ...Option) error {
	req, err := mcp.LoadRequestFile(path)
	if err != nil {
		return err
	}

	client, err := NewClient(cfg, logger, opts...)
	if err != nil {
		return err
	}

	resp, err := client.Decide(ctx, req)
	if err != nil {
		return errors.Wrap(err, "telegram popup failed")
	}
	return mcp.WriteResponse(out, resp)
}
