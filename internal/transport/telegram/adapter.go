// Package telegram implements the transport.Adapter boundary on top of the
// Telegram Bot API. The daemon only sends and deletes messages; it never
// polls for updates.
package telegram

import (
	"context"
	"net/http"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindd/internal/transport"
	logx "remindd/pkg/logx"
)

const telegramTextLimit = 4096

type Config struct {
	Token string
	// Timeout bounds each Bot API HTTP call. Zero means 30s.
	Timeout time.Duration
}

type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log}, nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	if len(text) > telegramTextLimit {
		text = text[:telegramTextLimit]
	}

	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		DisableNotification:   opt.Silent,
		ThreadID:              to.ThreadID,
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOpt)
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Delete(tele.StoredMessage{
		ChatID:    ref.ChatID,
		MessageID: strconv.Itoa(ref.MessageID),
	})
}
