package altrady

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_relay/internal/modules/altrady/service"
	"signal_relay/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("altrady",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Client {
				return service.NewClient(service.Options{
					WebhookURLs: cfg.Altrady.WebhookURLs,
					Retries:     cfg.Delivery.Retries,
					Backoff:     cfg.Delivery.Backoff,
					Timeout:     cfg.Delivery.Timeout,
				}, log)
			},
		),
	)
}
