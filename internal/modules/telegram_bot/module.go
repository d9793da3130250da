package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_relay/internal/modules/config"
	health "signal_relay/internal/modules/health/service"
	"signal_relay/internal/notify"
)

// NewNotifier выбирает Telegram, если заданы токен и чат, иначе пишет в лог.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, state *health.State, log *zap.Logger) (notify.Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		log.Info("telegram not configured, notifications go to the log")
		return notify.NewStdout(log), nil
	}

	t, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log.Named("telegram"))
	if err != nil {
		return nil, err
	}
	t.SetStatus(state.Summary)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			t.Start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			t.Stop()
			return nil
		},
	})
	return t, nil
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(NewNotifier),
	)
}
