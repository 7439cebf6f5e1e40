package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

const pollTimeout = 60

// Bot long-polls Telegram and answers each message with the handler's
// replies. Updates are handled one at a time.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler *Handler
}

// NewBot authenticates with token.
func NewBot(token string) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is empty")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("authorized on telegram")
	return &Bot{api: api}, nil
}

// SetHandler installs the message handler. It must be called before Run.
func (b *Bot) SetHandler(h *Handler) {
	b.handler = h
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.handler == nil {
		return fmt.Errorf("telegram bot has no handler")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)
	log.Info().Msg("telegram bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Info().Msg("telegram bot shutting down")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.reply(update.Message, b.handler.Handle(ctx, update.Message))
		}
	}
}

func (b *Bot) reply(to *tgbotapi.Message, replies []string) {
	for _, text := range replies {
		msg := tgbotapi.NewMessage(to.Chat.ID, text)
		msg.ReplyToMessageID = to.MessageID
		if _, err := b.api.Send(msg); err != nil {
			log.Error().Err(err).Int64("chat", to.Chat.ID).Msg("send reply failed")
		}
	}
}

// Fetch downloads the attachment fileID into a temporary file.
func (b *Bot) Fetch(ctx context.Context, fileID, name string) (string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file: %w", err)
	}
	return download(ctx, http.DefaultClient, url, name)
}

func download(ctx context.Context, client *http.Client, url, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: unexpected status %s", resp.Status)
	}

	f, err := os.CreateTemp("", "catchbot-*"+filepath.Ext(name))
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("save file: %w", err)
	}

	log.Debug().Str("file", name).Str("size", humanize.Bytes(uint64(n))).Msg("attachment downloaded")
	return f.Name(), nil
}
