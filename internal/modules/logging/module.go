package logging

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_relay/internal/modules/config"
	"signal_relay/pkg/logger"
)

func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Service.Name)
	l, err := logger.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	l = l.With(zap.String("service", cfg.Service.Name))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = l.Sync()
			return nil
		},
	})
	return l, nil
}

func Module() fx.Option {
	return fx.Module("logging",
		fx.Provide(NewLogger),
	)
}
