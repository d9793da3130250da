package discord

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_relay/internal/modules/config"
	"signal_relay/internal/modules/discord/service"
)

func Module() fx.Option {
	return fx.Module("discord",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Client {
				return service.NewClient(service.Options{
					Token:      cfg.Discord.Token,
					ChannelID:  cfg.Discord.ChannelID,
					APIBase:    cfg.Discord.APIBase,
					FetchLimit: cfg.Discord.FetchLimit,
					Timeout:    cfg.Discord.Timeout,
				}, log)
			},
		),
	)
}
