// Package journal keeps an append-only record of dispatched orders.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"signal_relay/internal/models"
	"signal_relay/pkg/db"
)

type Entry struct {
	CycleID    string
	MessageID  string
	SignalHash string
	Order      *models.OrderInstruction
	Results    []models.DeliveryResult
	CreatedAt  time.Time
}

func (e Entry) Delivered() bool { return models.AnyDelivered(e.Results) }

type Journal interface {
	Record(ctx context.Context, e Entry) error
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

const createTable = `CREATE TABLE IF NOT EXISTS dispatched_orders (
	id          BIGSERIAL PRIMARY KEY,
	cycle_id    UUID        NOT NULL,
	message_id  TEXT        NOT NULL,
	signal_hash TEXT        NOT NULL,
	symbol      TEXT        NOT NULL,
	side        TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	delivered   BOOLEAN     NOT NULL,
	results     JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
)`

const insertEntry = `INSERT INTO dispatched_orders
	(cycle_id, message_id, signal_hash, symbol, side, payload, delivered, results, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

type resultRow struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// PG writes entries to Postgres through the shared tx manager.
type PG struct {
	tx db.TxManager
}

func NewPG(tx db.TxManager) *PG {
	return &PG{tx: tx}
}

func (p *PG) Migrate(ctx context.Context) error {
	return p.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createTable)
		return err
	})
}

func (p *PG) Record(ctx context.Context, e Entry) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("journal.Record: %w", err)
		}
	}()

	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	return p.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertEntry, args...)
		return err
	})
}

func entryArgs(e Entry) ([]any, error) {
	if e.Order == nil {
		return nil, fmt.Errorf("entry for message %s has no order", e.MessageID)
	}
	payload, err := sonic.Marshal(redact(*e.Order))
	if err != nil {
		return nil, err
	}

	rows := make([]resultRow, 0, len(e.Results))
	for _, r := range e.Results {
		row := resultRow{Endpoint: r.Endpoint, Status: r.Status, Attempts: r.Attempts}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}
	results, err := sonic.Marshal(rows)
	if err != nil {
		return nil, err
	}

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return []any{
		e.CycleID, e.MessageID, e.SignalHash,
		e.Order.Symbol, string(e.Order.Side),
		payload, e.Delivered(), results, created.UTC(),
	}, nil
}

// credentials never reach the database
func redact(o models.OrderInstruction) models.OrderInstruction {
	o.APIKey = ""
	o.APISecret = ""
	return o
}
