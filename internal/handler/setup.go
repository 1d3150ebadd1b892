package handler

import (
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-sentinel/internal/config"
	"tg-sentinel/internal/service"
)

var globalConfig *config.Config

func Initialize(cfg *config.Config) {
	globalConfig = cfg
	service.Initialize(cfg)
}

// SetupMessageHandlers configures all bot message and update handlers
func SetupMessageHandlers(bh *th.BotHandler, bot *telego.Bot) {
	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		handled, err := handleCommand(ctx, bot, message)
		if handled {
			return err
		}
		return handleIncomingMessage(ctx, bot, message)
	})

	bh.HandleChannelPost(func(ctx *th.Context, message telego.Message) error {
		return handleIncomingMessage(ctx, bot, message)
	})

	bh.HandleCallbackQuery(func(ctx *th.Context, query telego.CallbackQuery) error {
		return HandleCallbackQuery(ctx, bot, query)
	})
}
