package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"signal_relay/internal/helper"
	"signal_relay/internal/journal"
	"signal_relay/internal/models"
	"signal_relay/internal/notify"
	"signal_relay/internal/order"
	"signal_relay/internal/signal"
	"signal_relay/pkg/metrics"
)

// MessageSource supplies chat messages newer than a cursor.
type MessageSource interface {
	Fetch(ctx context.Context, afterID string) ([]models.Message, error)
	// Latest returns the newest message id, "" for an empty channel.
	Latest(ctx context.Context) (string, error)
}

// OrderSink delivers one order to every configured endpoint and reports
// per-endpoint results.
type OrderSink interface {
	Deliver(ctx context.Context, o *models.OrderInstruction) []models.DeliveryResult
}

type CycleObserver interface {
	CycleDone(cursor string, at time.Time)
}

// Message outcomes, used as metric labels.
const (
	OutcomeStale            = "stale"
	OutcomeEmpty            = "empty"
	OutcomeNoSignal         = "no_signal"
	OutcomeProviderRejected = "provider_rejected"
	OutcomeQuoteMismatch    = "quote_mismatch"
	OutcomeImplausible      = "implausible"
	OutcomeDuplicate        = "duplicate"
	OutcomeCooldown         = "cooldown"
	OutcomeCompileFailed    = "compile_failed"
	OutcomeDispatched       = "dispatched"
	OutcomeUndelivered      = "undelivered"
)

type Deps struct {
	Source     MessageSource
	Sink       OrderSink
	Store      *Store
	Gate       *Gate
	Extractor  *signal.Extractor
	Validation signal.ValidationOptions
	Compiler   *order.Compiler
	Journal    journal.Journal
	Notifier   notify.Notifier
	Observer   CycleObserver
	Schedule   Schedule
	FaultPause time.Duration
	Log        *zap.Logger
	Now        func() time.Time
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	ID         string
	Fetched    int
	Processed  int
	Dispatched int
	Cursor     string
	Outcomes   map[string]int
}

// Poller owns the ProcessingState and runs poll cycles one after another.
// Nothing else reads or writes the state.
type Poller struct {
	d     Deps
	log   *zap.Logger
	state *models.ProcessingState

	bootstrapped bool
}

func NewPoller(d Deps) *Poller {
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewStdout(d.Log)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.FaultPause <= 0 {
		d.FaultPause = 10 * time.Second
	}
	return &Poller{d: d, log: d.Log}
}

// State returns the live state. Only the polling goroutine may use it.
func (p *Poller) State() *models.ProcessingState { return p.state }

// Load reads the persisted state. Corrupt state is logged and replaced by
// defaults: the relay then starts as on a first run.
func (p *Poller) Load() {
	st, err := p.d.Store.Load()
	if err != nil {
		p.log.Warn("state unreadable, starting fresh", zap.String("path", p.d.Store.Path()), zap.Error(err))
	}
	p.state = st
	p.bootstrapped = st.LastProcessedMessageID != ""
	p.log.Info("state loaded",
		zap.String("cursor", st.LastProcessedMessageID),
		zap.Int("seen_hashes", len(st.SeenSignalHashes)),
		zap.Time("last_trade", st.LastTradeTimestamp),
	)
}

// Run loads the state and polls until ctx is cancelled. A started cycle is
// never interrupted.
func (p *Poller) Run(ctx context.Context) {
	if p.state == nil {
		p.Load()
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.safeCycle(ctx); err != nil {
			p.log.Error("poll cycle failed", zap.Error(err), zap.Duration("pause", p.d.FaultPause))
			if !helper.SleepCtx(ctx, p.d.FaultPause) {
				return
			}
		}
		next := p.d.Schedule.Next(p.d.Now())
		if !helper.SleepCtx(ctx, next.Sub(p.d.Now())) {
			return
		}
	}
}

func (p *Poller) safeCycle(ctx context.Context) (rep CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in poll cycle: %v", r)
		}
	}()
	return p.RunCycle(context.WithoutCancel(ctx))
}

// bootstrap seeds an empty cursor with the newest message so channel
// history is not replayed on first start.
func (p *Poller) bootstrap(ctx context.Context) error {
	latest, err := p.d.Source.Latest(ctx)
	if err != nil {
		return errors.Wrap(err, "bootstrap cursor")
	}
	p.bootstrapped = true
	if latest == "" {
		p.log.Info("channel empty, cursor stays unset")
		return nil
	}
	p.state.LastProcessedMessageID = latest
	p.log.Info("cursor bootstrapped", zap.String("cursor", latest))
	return errors.Wrap(p.d.Store.Save(p.state), "save state")
}

// RunCycle fetches new messages and processes them in ascending id order.
// The state is saved once at the end if the cursor moved.
func (p *Poller) RunCycle(ctx context.Context) (CycleReport, error) {
	if p.state == nil {
		p.Load()
	}
	rep := CycleReport{ID: uuid.NewString(), Outcomes: map[string]int{}}

	span, ctx := opentracing.StartSpanFromContext(ctx, "relay.cycle")
	span.SetTag("cycle_id", rep.ID)
	defer span.Finish()

	log := p.log.With(zap.String("cycle_id", rep.ID))

	if !p.bootstrapped {
		if err := p.bootstrap(ctx); err != nil {
			log.Warn("cursor bootstrap failed, retrying next cycle", zap.Error(err))
			return rep, nil
		}
		if p.state.LastProcessedMessageID != "" {
			rep.Cursor = p.state.LastProcessedMessageID
			p.finish(rep)
			return rep, nil
		}
	}

	msgs, err := p.d.Source.Fetch(ctx, p.state.LastProcessedMessageID)
	if err != nil {
		return rep, errors.Wrap(err, "fetch messages")
	}
	rep.Fetched = len(msgs)

	sort.SliceStable(msgs, func(i, j int) bool { return helper.IDAfter(msgs[j].ID, msgs[i].ID) })

	moved := false
	for _, m := range msgs {
		if !helper.IDAfter(m.ID, p.state.LastProcessedMessageID) {
			p.count(&rep, OutcomeStale)
			continue
		}
		outcome := p.process(ctx, log.With(zap.String("message_id", m.ID)), rep.ID, m)
		p.count(&rep, outcome)
		rep.Processed++
		if outcome == OutcomeDispatched {
			rep.Dispatched++
		}
		p.state.LastProcessedMessageID = m.ID
		moved = true
	}
	rep.Cursor = p.state.LastProcessedMessageID

	if moved {
		if err := p.d.Store.Save(p.state); err != nil {
			return rep, errors.Wrap(err, "save state")
		}
	}
	if rep.Processed == 0 {
		log.Debug("no new messages", zap.String("cursor", rep.Cursor))
	} else {
		log.Info("cycle done",
			zap.Int("fetched", rep.Fetched),
			zap.Int("processed", rep.Processed),
			zap.Int("dispatched", rep.Dispatched),
			zap.String("cursor", rep.Cursor),
		)
	}
	p.finish(rep)
	return rep, nil
}

func (p *Poller) finish(rep CycleReport) {
	metrics.CyclesTotal.Inc()
	if p.d.Observer != nil {
		p.d.Observer.CycleDone(rep.Cursor, p.d.Now())
	}
}

func (p *Poller) count(rep *CycleReport, outcome string) {
	rep.Outcomes[outcome]++
	metrics.MessagesTotal.WithLabelValues(outcome).Inc()
}

func (p *Poller) process(ctx context.Context, log *zap.Logger, cycleID string, m models.Message) string {
	text := signal.NormalizeMessage(m)
	if text == "" {
		return OutcomeEmpty
	}

	sig, err := p.d.Extractor.Extract(text)
	switch {
	case errors.Is(err, signal.ErrProviderRejected):
		log.Info("signal skipped: provider", zap.Error(err))
		return OutcomeProviderRejected
	case errors.Is(err, signal.ErrQuoteMismatch):
		log.Info("signal skipped: quote", zap.Error(err))
		return OutcomeQuoteMismatch
	case err != nil:
		log.Debug("no signal", zap.Error(err))
		return OutcomeNoSignal
	}
	log = log.With(zap.String("base", sig.Base), zap.String("side", string(sig.Side)), zap.String("convention", sig.Convention))

	drops, err := signal.Validate(sig, p.d.Validation)
	if err != nil {
		log.Warn("signal rejected", zap.Error(err))
		p.d.Notifier.Sendf("⚠️ %s %s rejected: %v", sig.Base, strings.ToUpper(string(sig.Side)), err)
		return OutcomeImplausible
	}
	for _, d := range drops {
		log.Info("field dropped", zap.String("field", d.Field), zap.Float64("value", d.Value), zap.String("reason", d.Reason))
	}

	hash := SignalHash(sig)
	switch p.d.Gate.Check(p.state, hash) {
	case Duplicate:
		log.Info("duplicate signal ignored", zap.String("hash", hash))
		return OutcomeDuplicate
	case CoolingDown:
		log.Info("signal skipped: cooldown", zap.Time("last_trade", p.state.LastTradeTimestamp))
		return OutcomeCooldown
	}

	o, err := p.d.Compiler.Compile(sig)
	if err != nil {
		log.Error("compile failed", zap.Error(err))
		return OutcomeCompileFailed
	}

	results := p.dispatch(ctx, cycleID, m.ID, o)
	delivered := models.AnyDelivered(results)
	for _, r := range results {
		status := "failed"
		if r.OK() {
			status = "ok"
		}
		metrics.DeliveriesTotal.WithLabelValues(status).Inc()
		if r.OK() {
			log.Info("order delivered", zap.String("endpoint", r.Endpoint), zap.Int("status", r.Status), zap.Int("attempts", r.Attempts))
		} else {
			log.Error("order delivery failed", zap.String("endpoint", r.Endpoint), zap.Int("attempts", r.Attempts), zap.Error(r.Err))
		}
	}

	if err := p.d.Journal.Record(ctx, journal.Entry{
		CycleID:    cycleID,
		MessageID:  m.ID,
		SignalHash: hash,
		Order:      o,
		Results:    results,
		CreatedAt:  p.d.Now(),
	}); err != nil {
		log.Warn("journal write failed", zap.Error(err))
	}
	p.d.Notifier.Send(dispatchNote(sig, o, results))

	if !delivered {
		return OutcomeUndelivered
	}
	p.d.Gate.Commit(p.state, hash)
	return OutcomeDispatched
}

func (p *Poller) dispatch(ctx context.Context, cycleID, messageID string, o *models.OrderInstruction) []models.DeliveryResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "relay.dispatch")
	defer span.Finish()
	span.SetTag("cycle_id", cycleID)
	span.SetTag("message_id", messageID)
	span.SetTag("symbol", o.Symbol)

	results := p.d.Sink.Deliver(ctx, o)
	span.SetTag("delivered", models.AnyDelivered(results))
	return results
}

func dispatchNote(sig *models.TradeSignal, o *models.OrderInstruction, results []models.DeliveryResult) string {
	var b strings.Builder
	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	mark := "✅"
	if ok == 0 {
		mark = "❌"
	} else if ok < len(results) {
		mark = "⚠️"
	}
	fmt.Fprintf(&b, "%s %s %s @ %g", mark, o.Symbol, strings.ToUpper(string(o.Side)), sig.Entry)
	if sig.Provider != "" {
		fmt.Fprintf(&b, " (%s)", sig.Provider)
	}
	tps, runner := 0, ""
	for _, l := range o.TakeProfits {
		if l.IsRunner() {
			runner = fmt.Sprintf(" + runner %.2f%%", l.PricePercentage)
			continue
		}
		tps++
	}
	fmt.Fprintf(&b, "\nTPs: %d%s | SL %.4f%% (%s) | DCA: %d", tps, runner, o.StopLoss.StopPercentage, o.StopLoss.Source, len(o.DCAOrders))
	fmt.Fprintf(&b, "\ndelivered %d/%d", ok, len(results))
	for _, r := range results {
		b.WriteString("\n- ")
		b.WriteString(r.String())
	}
	return b.String()
}
