// Package telegram reads liquidation messages from a Telegram channel via the
// Bot API and answers operator commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/liqoracle/internal/ingest"
	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/monitor"
)

// maxBacklog is the Bot API cap on updates per getUpdates call.
const maxBacklog = 100

type botAPI interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client is an ingest.Source backed by a Telegram bot that is a member of
// the watched channel.
type Client struct {
	bot            botAPI
	chatID         int64
	chatUsername   string
	maxRetries     int
	retryDelayBase time.Duration
	nextOffset     int
	status         func() models.MonitorSnapshot
}

var _ ingest.Source = (*Client)(nil)

// NewClient creates a new Telegram client. chat is a numeric chat id or a
// public @username.
func NewClient(botToken, chat string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	c, err := newClient(nil, chat, maxRetries, retryDelayBase)
	if err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	c.bot = bot
	return c, nil
}

func newClient(bot botAPI, chat string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return nil, errors.New("chat must not be empty")
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	c := &Client{
		bot:            bot,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		c.chatID = id
	} else {
		name := strings.TrimPrefix(chat, "@")
		if name == "" || strings.ContainsAny(name, " /") {
			return nil, fmt.Errorf("invalid chat %q", chat)
		}
		c.chatUsername = name
	}
	return c, nil
}

// SetStatusProvider enables the /status command.
func (c *Client) SetStatusProvider(fn func() models.MonitorSnapshot) {
	c.status = fn
}

// Recent returns the pending update backlog from the watched chat, oldest
// first. The Bot API cannot read channel history, so this is best effort.
func (c *Client) Recent(_ context.Context, limit int) ([]ingest.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxBacklog {
		limit = maxBacklog
	}
	updates, err := c.bot.GetUpdates(tgbotapi.UpdateConfig{Offset: -limit, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch updates: %w", err)
	}

	var msgs []ingest.Message
	for _, u := range updates {
		if u.UpdateID >= c.nextOffset {
			c.nextOffset = u.UpdateID + 1
		}
		msg := messageOf(u)
		if msg == nil || msg.IsCommand() || !c.matches(msg.Chat) {
			continue
		}
		msgs = append(msgs, toMessage(msg))
	}
	return msgs, nil
}

// Listen long-polls for updates until ctx is cancelled. Messages from the
// watched chat go to handle; commands from it are answered directly.
func (c *Client) Listen(ctx context.Context, handle func(ingest.Message)) error {
	u := tgbotapi.NewUpdate(c.nextOffset)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("update channel closed")
			}
			msg := messageOf(update)
			if msg == nil {
				continue
			}
			if msg.IsCommand() {
				c.handleCommand(msg)
				continue
			}
			if c.matches(msg.Chat) {
				handle(toMessage(msg))
			}
		}
	}
}

func (c *Client) matches(chat *tgbotapi.Chat) bool {
	if chat == nil {
		return false
	}
	if c.chatID != 0 {
		return chat.ID == c.chatID
	}
	return strings.EqualFold(chat.UserName, c.chatUsername)
}

func messageOf(u tgbotapi.Update) *tgbotapi.Message {
	if u.ChannelPost != nil {
		return u.ChannelPost
	}
	return u.Message
}

func toMessage(msg *tgbotapi.Message) ingest.Message {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return ingest.Message{
		ID:        msg.MessageID,
		Text:      text,
		Timestamp: msg.Time().UTC(),
	}
}

// handleCommand answers commands posted in the watched chat only.
func (c *Client) handleCommand(msg *tgbotapi.Message) {
	if !c.matches(msg.Chat) {
		logger.Debug("Ignoring /%s from unwatched chat", msg.Command())
		return
	}
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		if c.status == nil {
			return
		}
		text = formatStatus(c.status())
	default:
		return
	}
	if err := c.sendMarkdownV2(msg.Chat.ID, text); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// formatStatus renders a monitor snapshot as a MarkdownV2 message.
func formatStatus(s models.MonitorSnapshot) string {
	var b strings.Builder
	b.WriteString("📊 *Liquidation monitor*\n")
	fmt.Fprintf(&b, "State: *%s*\n", escapeMarkdownV2(string(s.State)))
	fmt.Fprintf(&b, "Speed: %s USD/sec\n", escapeMarkdownV2(monitor.FormatUSD(s.LastKnownSpeed)))
	if s.ActiveSince != nil {
		fmt.Fprintf(&b, "Active since: %s\n", escapeMarkdownV2(s.ActiveSince.UTC().Format(time.RFC3339)))
		fmt.Fprintf(&b, "Baseline: %s USD/sec\n", escapeMarkdownV2(monitor.FormatUSD(s.PrevKnownSpeed)))
		fmt.Fprintf(&b, "Buffered events: %d\n", s.BufferedEvents)
	}
	if s.LastSummarySent != nil {
		fmt.Fprintf(&b, "Last summary: %s\n", escapeMarkdownV2(s.LastSummarySent.UTC().Format(time.RFC3339)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
