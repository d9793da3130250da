package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"signal_relay/internal/modules/altrady"
	"signal_relay/internal/modules/config"
	"signal_relay/internal/modules/discord"
	"signal_relay/internal/modules/health"
	"signal_relay/internal/modules/logging"
	"signal_relay/internal/modules/postgres"
	"signal_relay/internal/modules/relay"
	telegram "signal_relay/internal/modules/telegram_bot"
	"signal_relay/internal/modules/tracing"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		logging.Module(),
		tracing.Module(),
		health.Module(),
		postgres.Module(),
		telegram.Module(),
		discord.Module(),
		altrady.Module(),
		relay.Module(),
	)
	app.Run()
}
