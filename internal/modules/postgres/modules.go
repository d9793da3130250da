package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_relay/internal/journal"
	"signal_relay/internal/modules/config"
	"signal_relay/pkg/db"
)

// NewJournal поднимает пул и таблицу журнала. Без DSN журнал отключён.
func NewJournal(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (journal.Journal, error) {
	if cfg.Postgres.DSN == "" {
		log.Info("postgres not configured, dispatch journal disabled")
		return journal.Nop{}, nil
	}

	ctx := context.Background()
	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN: cfg.Postgres.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	if err = poolMaster.Ping(ctx); err != nil {
		poolMaster.Close()
		return nil, err
	}

	txm := db.NewPgTxManager(poolMaster)
	j := journal.NewPG(txm)
	if err := j.Migrate(ctx); err != nil {
		txm.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			txm.Close()
			return nil
		},
	})
	return j, nil
}

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(NewJournal),
	)
}
