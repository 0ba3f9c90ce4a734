// Package telegram adapts the Telegram Bot API to the channel contract:
// it normalizes incoming updates into events and delivers text and image
// replies.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/ezbo/shopbot/internal/channel"
)

// ChannelName identifies this adapter in normalized events.
const ChannelName = "telegram"

const sendTimeout = 10 * time.Second

// Handler receives normalized events from the adapter.
type Handler func(ctx context.Context, ev channel.Event)

// Channel is the Telegram implementation of channel.Sender plus the
// inbound polling listener.
type Channel struct {
	bot    *tgbot.Bot
	token  string
	logger *slog.Logger
}

// New creates the Telegram channel. The handler is invoked for every
// normalized update.
func New(token string, logger *slog.Logger, handler Handler) (*Channel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram")

	ch := &Channel{token: token, logger: log}

	opts := []tgbot.Option{
		tgbot.WithMiddlewares(loggingMiddleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			ev, ok := ch.normalize(ctx, b, update)
			if !ok {
				return
			}
			handler(ctx, ev)
		}),
	}

	b, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	ch.bot = b
	return ch, nil
}

// Run starts long polling and blocks until the context is cancelled.
func (c *Channel) Run(ctx context.Context) {
	c.logger.Info("Telegram listener started")
	c.bot.Start(ctx)
	c.logger.Info("Telegram listener stopped")
}

// Name implements channel.Sender.
func (c *Channel) Name() string { return ChannelName }

// SendText implements channel.Sender.
func (c *Channel) SendText(recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram recipient %q: %w", recipient, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if _, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// SendImage implements channel.Sender.
func (c *Channel) SendImage(recipient, uri, caption string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram recipient %q: %w", recipient, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	_, err = c.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileString{Data: uri},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram photo: %w", err)
	}
	return nil
}

// normalize converts a Telegram update into a channel event. Photo messages
// resolve the highest-quality photo into a downloadable file URL.
func (c *Channel) normalize(ctx context.Context, b *tgbot.Bot, update *models.Update) (channel.Event, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return channel.Event{}, false
	}

	ev := channel.Event{
		Channel: ChannelName,
		Sender:  strconv.FormatInt(msg.Chat.ID, 10),
		Text:    msg.Text,
		EventID: fmt.Sprintf("%s:%d:%d", ChannelName, msg.Chat.ID, msg.ID),
	}

	if msg.Sticker != nil {
		ev.StickerID = msg.Sticker.FileUniqueID
		return ev, true
	}

	if len(msg.Photo) > 0 {
		if msg.Caption != "" {
			ev.Text = msg.Caption
		}

		var best models.PhotoSize
		for _, p := range msg.Photo {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}

		fileObj, err := b.GetFile(ctx, &tgbot.GetFileParams{FileID: best.FileID})
		if err != nil || fileObj.FilePath == "" {
			c.logger.ErrorContext(ctx, "Failed to resolve photo file path", "file_id", best.FileID, "error", err)
			return channel.Event{}, false
		}
		ev.ImageURL = fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, fileObj.FilePath)
	}

	if ev.Text == "" && ev.ImageURL == "" {
		return channel.Event{}, false
	}
	return ev, true
}

// loggingMiddleware logs incoming updates and their processing time.
func loggingMiddleware(log *slog.Logger) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			startTime := time.Now()

			logEntry := log.With("update_id", update.ID)
			if update.Message != nil {
				logEntry = logEntry.With(
					"message_id", update.Message.ID,
					"chat_id", update.Message.Chat.ID,
					"text_preview", truncateString(update.Message.Text, 50),
				)
			}

			logEntry.InfoContext(ctx, "Processing update")
			next(ctx, b, update)
			logEntry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
